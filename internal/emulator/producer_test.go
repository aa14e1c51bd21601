// ABOUTME: Tests for the emulator audio producer
// ABOUTME: Covers chunk sizing, the high-water mark, source end and simulated freezes
package emulator

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 8000 Hz, 8-bit mono is 8 bytes per millisecond
var testFormat = audio.Format{SampleRate: 8000, SampleSizeBits: 8, Channels: 1}

type fakeSink struct {
	mu        sync.Mutex
	enqueued  [][]byte
	occupancy int
	flushes   []player.FlushReason
}

func (f *fakeSink) Enqueue(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, append([]byte(nil), b...))
	f.occupancy += len(b)
}

func (f *fakeSink) OccupancyBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.occupancy
}

func (f *fakeSink) Flush(reason player.FlushReason) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := testFormat.BytesToMillis(f.occupancy)
	f.occupancy = 0
	f.flushes = append(f.flushes, reason)
	return dropped
}

func (f *fakeSink) chunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func newProducer(t *testing.T, src io.Reader, sink Sink, cfg Config) *Producer {
	t.Helper()
	cfg.Format = testFormat
	p, err := New(src, sink, cfg)
	require.NoError(t, err)
	return p
}

func TestNewRejectsInvalidFormat(t *testing.T) {
	_, err := New(bytes.NewReader(nil), &fakeSink{}, Config{})
	assert.ErrorIs(t, err, audio.ErrInvalidFormat)
}

func TestTickEnqueuesOneChunk(t *testing.T) {
	sink := &fakeSink{}
	p := newProducer(t, bytes.NewReader(make([]byte, 1000)), sink, Config{Chunk: 20 * time.Millisecond})

	require.NoError(t, p.Tick(context.Background(), time.Now()))
	require.Len(t, sink.enqueued, 1)
	assert.Len(t, sink.enqueued[0], 160)
	assert.Equal(t, Stats{Chunks: 1}, p.Stats())
}

func TestHighWaterSkipsTicks(t *testing.T) {
	sink := &fakeSink{}
	p := newProducer(t, bytes.NewReader(make([]byte, 10000)), sink, Config{
		Chunk:     20 * time.Millisecond,
		HighWater: 40 * time.Millisecond,
	})

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Tick(context.Background(), now))
	}

	// 160, 320 and 480 bytes buffered; the last exceeds 320 so ticks stop
	assert.Equal(t, 3, sink.chunks())
	assert.Equal(t, int64(2), p.Stats().Skipped)
}

func TestTickReportsSourceEnd(t *testing.T) {
	sink := &fakeSink{}
	p := newProducer(t, bytes.NewReader(make([]byte, 200)), sink, Config{Chunk: 20 * time.Millisecond, HighWater: time.Second})

	require.NoError(t, p.Tick(context.Background(), time.Now()))
	assert.ErrorIs(t, p.Tick(context.Background(), time.Now()), io.EOF)
	require.Len(t, sink.enqueued, 2)
	assert.Len(t, sink.enqueued[1], 40, "partial chunk is still delivered")
}

func TestTickTrimsPartialFrames(t *testing.T) {
	stereo := audio.Format{SampleRate: 8000, SampleSizeBits: 16, Channels: 2}
	sink := &fakeSink{}
	p, err := New(bytes.NewReader(make([]byte, 7)), sink, Config{Format: stereo})
	require.NoError(t, err)

	assert.ErrorIs(t, p.Tick(context.Background(), time.Now()), io.EOF)
	require.Len(t, sink.enqueued, 1)
	assert.Len(t, sink.enqueued[0], 4)
}

func TestStallFlushesWithFreezeReason(t *testing.T) {
	sink := &fakeSink{}
	var flushed []float64
	p := newProducer(t, bytes.NewReader(make([]byte, 10000)), sink, Config{
		Chunk:         20 * time.Millisecond,
		HighWater:     time.Second,
		StallEvery:    time.Second,
		StallDuration: time.Millisecond,
		OnFlush: func(reason player.FlushReason, droppedMs float64) {
			assert.Equal(t, player.FlushFreeze, reason)
			flushed = append(flushed, droppedMs)
		},
	})

	start := time.Now()
	ctx := context.Background()
	require.NoError(t, p.Tick(ctx, start))
	require.NoError(t, p.Tick(ctx, start.Add(500*time.Millisecond)))
	assert.Empty(t, sink.flushes)

	require.NoError(t, p.Tick(ctx, start.Add(time.Second)))
	assert.Equal(t, []player.FlushReason{player.FlushFreeze}, sink.flushes)
	assert.Equal(t, []float64{40}, flushed)
	assert.Equal(t, int64(1), p.Stats().Stalls)

	// Not due again until a full period after the freeze
	require.NoError(t, p.Tick(ctx, start.Add(1500*time.Millisecond)))
	assert.Len(t, sink.flushes, 1)
}

func TestStallHonorsCancellation(t *testing.T) {
	sink := &fakeSink{}
	p := newProducer(t, bytes.NewReader(make([]byte, 1000)), sink, Config{
		StallEvery:    time.Millisecond,
		StallDuration: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	require.NoError(t, p.Tick(ctx, start))
	cancel()
	assert.ErrorIs(t, p.Tick(ctx, start.Add(time.Second)), context.Canceled)
	assert.Empty(t, sink.flushes)
}

func TestRunStopsAtSourceEnd(t *testing.T) {
	sink := &fakeSink{}
	p := newProducer(t, bytes.NewReader(make([]byte, 320)), sink, Config{
		Chunk:     5 * time.Millisecond,
		HighWater: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 8, sink.chunks())
}

func TestRunStopsOnCancel(t *testing.T) {
	sink := &fakeSink{}
	p := newProducer(t, bytes.NewReader(make([]byte, 1<<20)), sink, Config{Chunk: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return sink.chunks() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
