// ABOUTME: Virtual occupancy estimate for the message transport
// ABOUTME: Drains at the declared byte rate between producer calls
package transport

import (
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
)

// Estimator approximates how many bytes the renderer still holds when the
// producer cannot observe playback. It is not safe for concurrent use.
type Estimator struct {
	Buffered       int64
	BytesPerSecond int
	LastAt         time.Time
}

// NewEstimator starts an empty estimate at the default 22050 Hz 32-bit stereo rate
func NewEstimator(now time.Time) Estimator {
	return Estimator{BytesPerSecond: audio.DefaultBytesPerSecond, LastAt: now}
}

// Drain returns buffered minus floor(bytesPerSecond * elapsed), never below zero
func Drain(buffered int64, bytesPerSecond int, elapsed time.Duration) int64 {
	if buffered <= 0 {
		return 0
	}
	if elapsed <= 0 || bytesPerSecond <= 0 {
		return buffered
	}
	bps := int64(bytesPerSecond)
	secs := int64(elapsed / time.Second)
	rem := int64(elapsed % time.Second)
	if secs >= buffered/bps+1 {
		return 0
	}
	drained := bps*secs + bps*rem/int64(time.Second)
	if drained >= buffered {
		return 0
	}
	return buffered - drained
}

// Advance drains the estimate up to now and returns it. LastAt only moves by
// the time the drained bytes account for, so the sub-byte remainder carries
// over and frequent calls still drain at the declared rate.
func (e *Estimator) Advance(now time.Time) int64 {
	elapsed := now.Sub(e.LastAt)
	if elapsed <= 0 {
		return e.Buffered
	}
	before := e.Buffered
	e.Buffered = Drain(before, e.BytesPerSecond, elapsed)
	if e.Buffered == 0 || e.BytesPerSecond <= 0 {
		e.LastAt = now
		return e.Buffered
	}
	e.LastAt = e.LastAt.Add(bytesDuration(before-e.Buffered, e.BytesPerSecond))
	return e.Buffered
}

// bytesDuration is the time n bytes take to play at bytesPerSecond, rounded down
func bytesDuration(n int64, bytesPerSecond int) time.Duration {
	bps := int64(bytesPerSecond)
	secs := n / bps
	rem := n % bps
	return time.Duration(secs)*time.Second + time.Duration(rem*int64(time.Second)/bps)
}

// Add accounts for n newly sent bytes
func (e *Estimator) Add(n int) {
	if n > 0 {
		e.Buffered += int64(n)
	}
}

// SetRate drains at the old rate up to now, then switches
func (e *Estimator) SetRate(bytesPerSecond int, now time.Time) {
	if bytesPerSecond <= 0 {
		return
	}
	e.Advance(now)
	e.BytesPerSecond = bytesPerSecond
}

// Reset empties the estimate and restarts its clock
func (e *Estimator) Reset(now time.Time) int64 {
	dropped := e.Advance(now)
	e.Buffered = 0
	e.LastAt = now
	return dropped
}
