// ABOUTME: Transport capability interface and mode selection
// ABOUTME: Defines the producer contract shared by both transports
package transport

import "github.com/harperreed/emuaudio/pkg/protocol"

// Mode tags the active transport in telemetry
type Mode string

const (
	ModeShared  Mode = "shared"
	ModeMessage Mode = "message"
)

// Transport is what the producer calls. Every method returns immediately.
type Transport interface {
	// Mode reports which transport is active
	Mode() Mode

	// OccupancyBytes is a best-effort snapshot of buffered-but-unplayed bytes
	OccupancyBytes() int

	// Enqueue hands PCM to the renderer or drops it; the caller keeps ownership of p
	Enqueue(p []byte)

	// Reset discards buffered audio and returns the bytes dropped
	Reset() int
}

// FormatDeclarer is implemented by transports whose accounting depends on the stream format
type FormatDeclarer interface {
	DeclareFormat(sampleRate, sampleSizeBits, channels int)
}

// Port delivers messages to a renderer: ordered, at-most-once, never blocking
type Port interface {
	Post(msg protocol.Message)
}

// Select picks the transport for a session. Shared memory wins whenever the
// renderer can reach it, unless the caller forces message passing.
func Select(sharedMemory, forceMessage bool) Mode {
	if sharedMemory && !forceMessage {
		return ModeShared
	}
	return ModeMessage
}
