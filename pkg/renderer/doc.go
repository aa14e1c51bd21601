// ABOUTME: Renderer package documentation
// ABOUTME: Describes the device-side half of the audio pipeline
// Package renderer is the consumer side of the audio pipeline. A device
// backend calls Render (or Read) from its real-time callback; the renderer
// drains whichever transport the session selected and never blocks.
//
// In message mode it keeps a bounded jitter queue fed through a non-blocking
// inbox. Both modes report buffered milliseconds and dropped chunks on the
// Stats channel.
package renderer
