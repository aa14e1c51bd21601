// ABOUTME: Per-transport buffer strategy owned by a player session
// ABOUTME: Answers occupancy, reset and rate questions for flush and telemetry
package player

import (
	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/transport"
)

// strategy is the extension point a session consults instead of branching on transport type
type strategy interface {
	Mode() transport.Mode
	OccupancyBytes() int
	Reset() int
	// BytesPerSecond converts occupancy into time
	BytesPerSecond() int
	// ReferenceBytes is the capacity fill percentages are measured against
	ReferenceBytes() int
}

type sharedStrategy struct {
	*transport.Shared
	format audio.Format
}

func (s sharedStrategy) BytesPerSecond() int { return s.format.BytesPerSecond() }

func (s sharedStrategy) ReferenceBytes() int { return s.Ring().Capacity() }

type messageStrategy struct {
	*transport.Fallback
	format        audio.Format
	maxBufferedMs int
}

// BytesPerSecond uses the session format, not the estimator's drain rate
func (m messageStrategy) BytesPerSecond() int { return m.format.BytesPerSecond() }

func (m messageStrategy) ReferenceBytes() int {
	return m.BytesPerSecond() * m.maxBufferedMs / 1000
}

// droppedMillis converts a byte count to milliseconds at the strategy's rate
func droppedMillis(st strategy, n int) float64 {
	bps := st.BytesPerSecond()
	if n <= 0 || bps <= 0 {
		return 0
	}
	return float64(n) * 1000 / float64(bps)
}
