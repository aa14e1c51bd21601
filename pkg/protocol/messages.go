// ABOUTME: Renderer message type definitions
// ABOUTME: Defines structs for every message understood by a renderer or its host
package protocol

import "github.com/harperreed/emuaudio/pkg/audio"

// Message types
const (
	TypePCM         = "renderer/pcm"
	TypeFormat      = "renderer/format"
	TypeReset       = "renderer/reset"
	TypeQueueStats  = "renderer/queue-stats"
	TypeResume      = "device/resume"
	TypeSuspend     = "device/suspend"
	TypeDeviceState = "device/state"
	TypeHostHello   = "host/hello"
	TypeSinkHello   = "sink/hello"
)

// Device states as reported by a sink
const (
	StateSuspended = "suspended"
	StateRunning   = "running"
	StateClosed    = "closed"
)

// Message is the top-level wrapper for all renderer messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// PCMChunk carries raw interleaved PCM owned by the receiver
type PCMChunk struct {
	Seq  uint64 `json:"seq"`
	Data []byte `json:"-"`
}

// Reset instructs the renderer to drop everything it has buffered
type Reset struct {
	Reason string `json:"reason,omitempty"`
}

// QueueStats is pushed by a renderer whenever its jitter buffer size or drop count changes.
// Values are untrusted and must be validated by the receiver.
type QueueStats struct {
	BufferedMs    float64 `json:"bufferedMs"`
	DroppedChunks float64 `json:"droppedChunks"`
}

// DeviceState reports the activation state of a remote output device
type DeviceState struct {
	State string `json:"state"`
}

// Resume asks a remote output device to (re)start
type Resume struct{}

// Suspend asks a remote output device to pause
type Suspend struct{}

// HostHello is sent by the producer host to open a remote rendering session
type HostHello struct {
	SessionID     string       `json:"session_id"`
	Name          string       `json:"name"`
	Format        audio.Format `json:"format"`
	MaxBufferedMs int          `json:"max_buffered_ms,omitempty"`
}

// SinkHello is the sink's response to host/hello
type SinkHello struct {
	SinkID  string `json:"sink_id"`
	Name    string `json:"name"`
	Backend string `json:"backend"`
	State   string `json:"state"`
}
