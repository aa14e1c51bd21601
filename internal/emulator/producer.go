// ABOUTME: Paces emulated machine audio into the player in fixed-size chunks
// ABOUTME: Applies a high-water mark and can simulate emulator freezes
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/player"
)

const (
	DefaultChunk     = 20 * time.Millisecond
	DefaultHighWater = 200 * time.Millisecond
)

// Sink is the part of the player the producer feeds
type Sink interface {
	Enqueue(b []byte)
	OccupancyBytes() int
	Flush(reason player.FlushReason) float64
}

// Config holds producer configuration
type Config struct {
	Format audio.Format

	// Chunk is how much audio each tick hands over
	Chunk time.Duration

	// HighWater skips a tick while more than this much audio is buffered
	HighWater time.Duration

	// StallEvery simulates a freeze this often, zero disables
	StallEvery time.Duration

	// StallDuration is how long a freeze lasts
	StallDuration time.Duration

	// OnFlush is called after a freeze discards buffered audio
	OnFlush func(reason player.FlushReason, droppedMs float64)

	Logger *slog.Logger
}

// Stats counts what the producer has done
type Stats struct {
	Chunks  int64
	Skipped int64
	Stalls  int64
}

// Producer reads PCM from the emulated machine and enqueues it on a clock
type Producer struct {
	config Config
	logger *slog.Logger
	src    io.Reader
	sink   Sink

	chunk     []byte
	highWater int
	nextStall time.Time

	chunks  atomic.Int64
	skipped atomic.Int64
	stalls  atomic.Int64
}

// New creates a producer reading src, which must already be in config.Format
func New(src io.Reader, sink Sink, config Config) (*Producer, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer format: %w", err)
	}
	if config.Chunk <= 0 {
		config.Chunk = DefaultChunk
	}
	if config.HighWater <= 0 {
		config.HighWater = DefaultHighWater
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	chunkBytes := config.Format.MillisToBytes(int(config.Chunk / time.Millisecond))
	if chunkBytes == 0 {
		chunkBytes = config.Format.FrameSize()
	}

	return &Producer{
		config:    config,
		logger:    config.Logger,
		src:       src,
		sink:      sink,
		chunk:     make([]byte, chunkBytes),
		highWater: config.Format.MillisToBytes(int(config.HighWater / time.Millisecond)),
	}, nil
}

// Run ticks until ctx is cancelled or the source ends
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("Producer starting",
		slog.String("format", p.config.Format.String()),
		slog.Duration("chunk", p.config.Chunk),
	)

	ticker := time.NewTicker(p.config.Chunk)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if err := p.Tick(ctx, now); err != nil {
				if errors.Is(err, io.EOF) {
					p.logger.Info("Source ended")
					return nil
				}
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		case <-ctx.Done():
			p.logger.Info("Producer stopping")
			return nil
		}
	}
}

// Tick produces at most one chunk. A due freeze blocks for StallDuration and
// then flushes whatever the player had buffered.
func (p *Producer) Tick(ctx context.Context, now time.Time) error {
	if p.config.StallEvery > 0 {
		if p.nextStall.IsZero() {
			p.nextStall = now.Add(p.config.StallEvery)
		} else if !now.Before(p.nextStall) {
			if err := p.stall(ctx); err != nil {
				return err
			}
			p.nextStall = now.Add(p.config.StallDuration + p.config.StallEvery)
		}
	}

	if p.sink.OccupancyBytes() > p.highWater {
		p.skipped.Add(1)
		return nil
	}

	n, err := io.ReadFull(p.src, p.chunk)
	if n > 0 {
		// Whole frames only
		n -= n % p.config.Format.FrameSize()
		p.sink.Enqueue(p.chunk[:n])
		p.chunks.Add(1)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read emulator audio: %w", err)
	}
	return err
}

func (p *Producer) stall(ctx context.Context) error {
	p.logger.Debug("Simulating freeze", slog.Duration("duration", p.config.StallDuration))
	timer := time.NewTimer(p.config.StallDuration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.stalls.Add(1)
	dropped := p.sink.Flush(player.FlushFreeze)
	if p.config.OnFlush != nil {
		p.config.OnFlush(player.FlushFreeze, dropped)
	}
	return nil
}

// Stats returns the producer counters
func (p *Producer) Stats() Stats {
	return Stats{
		Chunks:  p.chunks.Load(),
		Skipped: p.skipped.Load(),
		Stalls:  p.stalls.Load(),
	}
}
