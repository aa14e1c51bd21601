// ABOUTME: Producer-side audio transports
// ABOUTME: Shared-memory ring and message-passing fallback behind one interface
// Package transport moves PCM bytes from the emulator goroutine towards the
// real-time renderer without ever blocking the producer.
//
// Two implementations share the Transport interface:
//   - Shared writes into a lock-free ring buffer the renderer drains directly
//   - Fallback copies each chunk into a message for a Port and tracks a
//     virtual occupancy estimate, since it cannot observe playback
//
// Example:
//
//	ring, _ := ringbuf.New(ringbuf.DefaultCapacity)
//	t := transport.NewShared(ring, logger)
//	t.Enqueue(pcm)
package transport
