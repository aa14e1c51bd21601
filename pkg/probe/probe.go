// ABOUTME: Level probe for rendered audio
// ABOUTME: Captures a mono mix of recent output and reports RMS and clipping
package probe

import (
	"math"
	"sync"

	"github.com/harperreed/emuaudio/pkg/audio"
)

const (
	// ClipThreshold is the absolute sample level counted as clipping
	ClipThreshold = 0.985

	// DefaultSize holds roughly 100ms of 22050Hz audio
	DefaultSize = 2048
)

// Tap keeps the most recent rendered samples in a ring for analysis.
// The render callback writes, the telemetry goroutine snapshots.
type Tap struct {
	mu      sync.Mutex
	buf     []float32
	pos     int
	filled  int
	scratch []float32
}

// NewTap creates a tap holding size mono samples
func NewTap(size int) *Tap {
	if size <= 0 {
		size = DefaultSize
	}
	return &Tap{buf: make([]float32, size)}
}

// Write mixes interleaved PCM down to mono and appends it
func (t *Tap) Write(pcm []byte, sampleSizeBits, channels int) {
	if channels <= 0 {
		channels = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.scratch = audio.DecodeFloat(t.scratch[:0], pcm, sampleSizeBits)
	samples := t.scratch
	size := len(t.buf)
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i+c]
		}
		t.buf[t.pos] = sum / float32(channels)
		t.pos = (t.pos + 1) % size
		if t.filled < size {
			t.filled++
		}
	}
}

// Snapshot returns the captured samples in chronological order
func (t *Tap) Snapshot() []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := len(t.buf)
	out := make([]float32, t.filled)
	start := (t.pos - t.filled + size) % size
	for i := range out {
		out[i] = t.buf[(start+i)%size]
	}
	return out
}

// Clear discards captured samples
func (t *Tap) Clear() {
	t.mu.Lock()
	t.pos = 0
	t.filled = 0
	t.mu.Unlock()
}

// Analyze computes root-mean-square level and whether any sample reached the clip threshold.
// An empty window reports silence.
func Analyze(samples []float32) (rms float64, clipped bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if math.Abs(v) >= ClipThreshold {
			clipped = true
		}
	}
	return math.Sqrt(sum / float64(len(samples))), clipped
}
