// ABOUTME: Shared-memory transport over the SPSC ring buffer
// ABOUTME: Rejects writes that do not fit instead of blocking or splitting them
package transport

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio/ringbuf"
)

// overflowWarnInterval bounds how often overflow warnings reach the log
const overflowWarnInterval = time.Second

// Shared enqueues into a ring buffer drained by the renderer
type Shared struct {
	ring   *ringbuf.Buffer
	logger *slog.Logger

	overflows    atomic.Uint64
	droppedBytes atomic.Uint64
	lastWarn     atomic.Int64 // unix nanos
	unreported   atomic.Uint64
}

// NewShared creates a shared-memory transport
func NewShared(ring *ringbuf.Buffer, logger *slog.Logger) *Shared {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shared{ring: ring, logger: logger}
}

// Mode implements Transport
func (s *Shared) Mode() Mode { return ModeShared }

// Ring exposes the buffer handed to the renderer
func (s *Shared) Ring() *ringbuf.Buffer { return s.ring }

// OccupancyBytes implements Transport
func (s *Shared) OccupancyBytes() int {
	return s.ring.AvailableRead()
}

// Enqueue writes p whole or drops it with a warning
func (s *Shared) Enqueue(p []byte) {
	if s.ring.Push(p) {
		return
	}

	s.overflows.Add(1)
	s.droppedBytes.Add(uint64(len(p)))
	s.unreported.Add(1)

	now := time.Now().UnixNano()
	last := s.lastWarn.Load()
	if now-last < int64(overflowWarnInterval) || !s.lastWarn.CompareAndSwap(last, now) {
		return
	}
	pending := s.unreported.Swap(0)

	s.logger.Warn("Audio ring buffer overflow, dropping chunk",
		slog.Int("chunk_bytes", len(p)),
		slog.Int("available_write", s.ring.AvailableWrite()),
		slog.Int("capacity", s.ring.Capacity()),
		slog.Uint64("dropped_since_last_warning", pending),
	)
}

// Reset implements Transport
func (s *Shared) Reset() int {
	return s.ring.Reset()
}

// Overflows returns the number of rejected writes
func (s *Shared) Overflows() uint64 {
	return s.overflows.Load()
}

// DroppedBytes returns the total size of rejected writes
func (s *Shared) DroppedBytes() uint64 {
	return s.droppedBytes.Load()
}
