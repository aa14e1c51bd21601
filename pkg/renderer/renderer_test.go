// ABOUTME: Tests for the real-time renderer
// ABOUTME: Covers ring draining, jitter queue bounds, reset and queue statistics
package renderer

import (
	"testing"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/ringbuf"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mono8k = audio.Format{SampleRate: 8000, SampleSizeBits: 8, Channels: 1}

func pcm(seq uint64, n int, v byte) protocol.Message {
	data := make([]byte, n)
	for i := range data {
		data[i] = v
	}
	return protocol.Message{Type: protocol.TypePCM, Payload: protocol.PCMChunk{Seq: seq, Data: data}}
}

func drainStats(r *Renderer) []protocol.QueueStats {
	var out []protocol.QueueStats
	for {
		select {
		case s := <-r.Stats():
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Mode: transport.ModeShared, Format: mono8k})
	assert.Error(t, err, "shared mode needs a ring")

	_, err = New(Config{Mode: "carrier-pigeon", Format: mono8k})
	assert.Error(t, err)

	_, err = New(Config{Mode: transport.ModeMessage, Format: audio.Format{}})
	assert.ErrorIs(t, err, audio.ErrInvalidFormat)
}

func TestSharedRenderDrainsRingAndPadsSilence(t *testing.T) {
	ring, err := ringbuf.New(64)
	require.NoError(t, err)
	r, err := New(Config{Mode: transport.ModeShared, Format: mono8k, Ring: ring})
	require.NoError(t, err)

	require.True(t, ring.Push([]byte{1, 2, 3}))
	out := []byte{9, 9, 9, 9, 9}
	n := r.Render(out)

	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3, 0, 0}, out)
	assert.Zero(t, r.BufferedBytes())
	assert.Equal(t, []protocol.QueueStats{{BufferedMs: 0, DroppedChunks: 0}}, drainStats(r))
}

func TestSharedRenderReportsOccupancyAndUnderruns(t *testing.T) {
	ring, err := ringbuf.New(64)
	require.NoError(t, err)
	r, err := New(Config{Mode: transport.ModeShared, Format: mono8k, Ring: ring})
	require.NoError(t, err)

	out := make([]byte, 4)
	require.True(t, ring.Push([]byte{1, 2, 3, 4}))
	assert.Equal(t, 4, r.Render(out))

	// Running dry after a full buffer is one underrun, however long it lasts
	assert.Zero(t, r.Render(out))
	assert.Zero(t, r.Render(out))
	assert.Equal(t, uint64(1), r.Underruns())

	require.True(t, ring.Push(make([]byte, 8)))
	assert.Equal(t, 4, r.Render(out))

	assert.Equal(t, []protocol.QueueStats{
		{BufferedMs: 0, DroppedChunks: 0},
		{BufferedMs: 0, DroppedChunks: 1},
		{BufferedMs: 0.5, DroppedChunks: 1},
	}, drainStats(r))
}

func TestPostDoesNotWaitForRender(t *testing.T) {
	r, err := New(Config{Mode: transport.ModeMessage, Format: mono8k, MaxBufferedMs: 10000})
	require.NoError(t, err)

	// Hold the lock the way a render callback in progress does
	r.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < inboxSize+3; i++ {
			r.Post(pcm(uint64(i), 1, 1))
		}
	}()
	select {
	case <-done:
		r.mu.Unlock()
	case <-time.After(time.Second):
		r.mu.Unlock()
		t.Fatal("Post blocked behind the render lock")
	}

	assert.Equal(t, inboxSize, r.BufferedBytes(), "queued messages apply once the lock is free")
	assert.Equal(t, uint64(3), r.Dropped(), "overflowing messages are counted")

	out := make([]byte, inboxSize)
	assert.Equal(t, inboxSize, r.Render(out))
}

func TestMessageRenderPreservesOrderAcrossChunks(t *testing.T) {
	r, err := New(Config{Mode: transport.ModeMessage, Format: mono8k})
	require.NoError(t, err)

	r.Post(pcm(1, 3, 1))
	r.Post(pcm(2, 3, 2))

	out := make([]byte, 4)
	assert.Equal(t, 4, r.Render(out))
	assert.Equal(t, []byte{1, 1, 1, 2}, out)

	n, err := r.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "Read always fills the buffer")
	assert.Equal(t, []byte{2, 2, 0, 0}, out)
}

func TestJitterQueueDropsOldest(t *testing.T) {
	// 8000 B/s, 10ms cap = 80 bytes
	r, err := New(Config{Mode: transport.ModeMessage, Format: mono8k, MaxBufferedMs: 10})
	require.NoError(t, err)

	r.Post(pcm(1, 50, 1))
	r.Post(pcm(2, 50, 2))

	assert.Equal(t, uint64(1), r.Dropped())
	assert.Equal(t, 50, r.BufferedBytes())

	out := make([]byte, 50)
	r.Render(out)
	assert.Equal(t, byte(2), out[0], "newest chunk survives")

	stats := drainStats(r)
	require.NotEmpty(t, stats)
	last := stats[len(stats)-1]
	assert.Equal(t, float64(1), last.DroppedChunks)
	assert.Zero(t, last.BufferedMs)
}

func TestResetClearsQueue(t *testing.T) {
	r, err := New(Config{Mode: transport.ModeMessage, Format: mono8k})
	require.NoError(t, err)

	r.Post(pcm(1, 40, 5))
	r.Post(protocol.Message{Type: protocol.TypeReset, Payload: protocol.Reset{Reason: "flush"}})
	assert.Zero(t, r.BufferedBytes())

	stats := drainStats(r)
	require.Len(t, stats, 2)
	assert.Equal(t, 5.0, stats[0].BufferedMs)
	assert.Zero(t, stats[1].BufferedMs)
}

func TestFormatMessageUpdatesAccounting(t *testing.T) {
	r, err := New(Config{Mode: transport.ModeMessage, Format: mono8k})
	require.NoError(t, err)

	stereo16 := audio.Format{SampleRate: 8000, SampleSizeBits: 16, Channels: 2}
	r.Post(protocol.Message{Type: protocol.TypeFormat, Payload: stereo16})
	assert.Equal(t, stereo16, r.Format())

	r.Post(protocol.Message{Type: protocol.TypeFormat, Payload: audio.Format{}})
	assert.Equal(t, stereo16, r.Format(), "invalid formats are ignored")

	drainStats(r)
	r.Post(pcm(1, 320, 0))
	stats := drainStats(r)
	require.Len(t, stats, 1)
	assert.Equal(t, 10.0, stats[0].BufferedMs)
}

func TestRenderFeedsTap(t *testing.T) {
	r, err := New(Config{Mode: transport.ModeMessage, Format: mono8k, TapSize: 4})
	require.NoError(t, err)

	r.Post(pcm(1, 4, 255))
	r.Render(make([]byte, 4))

	snap := r.Tap().Snapshot()
	require.Len(t, snap, 4)
	assert.InDelta(t, 127.0/128, snap[0], 1e-4)
}
