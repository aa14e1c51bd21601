// ABOUTME: Message-passing transport used when shared memory is unavailable
// ABOUTME: Copies each chunk onto a port and estimates renderer occupancy
package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/protocol"
)

// Fallback posts PCM chunks as messages. Chunks the port cannot accept are
// still counted by the estimate, which only ever drains.
type Fallback struct {
	port   Port
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	est Estimator
	seq uint64
}

// NewFallback creates a message transport posting to port
func NewFallback(port Port, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fallback{
		port:   port,
		logger: logger,
		now:    time.Now,
	}
	f.est = NewEstimator(f.now())
	return f
}

// Mode implements Transport
func (f *Fallback) Mode() Mode { return ModeMessage }

// OccupancyBytes implements Transport
func (f *Fallback) OccupancyBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int(f.est.Advance(f.now()))
}

// Enqueue copies p into a message so later reuse of p by the caller is safe
func (f *Fallback) Enqueue(p []byte) {
	if len(p) == 0 {
		return
	}
	data := make([]byte, len(p))
	copy(data, p)

	f.mu.Lock()
	f.est.Advance(f.now())
	f.est.Add(len(p))
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	f.port.Post(protocol.Message{
		Type:    protocol.TypePCM,
		Payload: protocol.PCMChunk{Seq: seq, Data: data},
	})
}

// DeclareFormat switches the drain rate. Non-positive arguments are ignored.
func (f *Fallback) DeclareFormat(sampleRate, sampleSizeBits, channels int) {
	if sampleRate <= 0 || sampleSizeBits <= 0 || channels <= 0 {
		f.logger.Debug("Ignoring invalid stream format",
			slog.Int("sample_rate", sampleRate),
			slog.Int("sample_size_bits", sampleSizeBits),
			slog.Int("channels", channels),
		)
		return
	}

	bps := audio.BytesPerSecond(sampleRate, sampleSizeBits, channels)
	f.mu.Lock()
	f.est.SetRate(bps, f.now())
	f.mu.Unlock()

	f.port.Post(protocol.Message{
		Type: protocol.TypeFormat,
		Payload: audio.Format{
			SampleRate:     sampleRate,
			SampleSizeBits: sampleSizeBits,
			Channels:       channels,
		},
	})
}

// BytesPerSecond returns the current drain rate
func (f *Fallback) BytesPerSecond() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.est.BytesPerSecond
}

// Reset zeroes the estimate and tells the renderer to drop its queue
func (f *Fallback) Reset() int {
	f.mu.Lock()
	dropped := f.est.Reset(f.now())
	f.mu.Unlock()

	f.port.Post(protocol.Message{Type: protocol.TypeReset, Payload: protocol.Reset{Reason: "flush"}})
	return int(dropped)
}
