// ABOUTME: Renderer message schema package
// ABOUTME: Defines control, telemetry and PCM frame messages exchanged with a renderer
// Package protocol defines the messages exchanged between the producer side
// and a real-time renderer.
//
// In-process renderers receive Message values directly over a channel.
// Remote renderers receive the same messages over a WebSocket: PCM chunks
// as binary frames, everything else as JSON text frames.
//
// Example:
//
//	frame := protocol.EncodePCMFrame(seq, pcm)
//	msg, err := protocol.DecodeJSON(data)
package protocol
