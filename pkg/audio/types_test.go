// ABOUTME: Tests for audio types
// ABOUTME: Tests format arithmetic and sample conversion functions
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesPerSecond(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		expected int
	}{
		{"cd stereo", Format{44100, 16, 2}, 176400},
		{"baseline", Format{22050, 16, 4}, DefaultBytesPerSecond},
		{"8-bit mono", Format{8000, 8, 1}, 8000},
		{"sub-byte samples count as one byte", Format{8000, 4, 1}, 8000},
		{"12-bit rounds down", Format{8000, 12, 2}, 16000},
		{"float stereo", Format{48000, 32, 2}, 384000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.format.BytesPerSecond())
		})
	}

	assert.Equal(t, 176400, DefaultBytesPerSecond)
}

func TestFormatValidate(t *testing.T) {
	require.NoError(t, Format{44100, 16, 2}.Validate())

	for _, f := range []Format{{0, 16, 2}, {44100, 0, 2}, {44100, 16, 0}, {-1, 16, 2}} {
		err := f.Validate()
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("%v: expected ErrInvalidFormat, got %v", f, err)
		}
	}
}

func TestBytesToMillis(t *testing.T) {
	f := Format{44100, 16, 2}

	assert.InDelta(t, 1000.0, f.BytesToMillis(176400), 1e-9)
	assert.InDelta(t, 250.0, f.BytesToMillis(44100), 1e-9)
	assert.Zero(t, f.BytesToMillis(0))
	assert.Zero(t, Format{}.BytesToMillis(100))
}

func TestMillisToBytesIsFrameAligned(t *testing.T) {
	f := Format{22050, 16, 2}
	n := f.MillisToBytes(33)

	assert.Zero(t, n%f.FrameSize())
	assert.LessOrEqual(t, n, f.BytesPerSecond()*33/1000)
}

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive", 100 << 8, 100},
		{"negative", -100 << 8, -100},
		{"24bit positive", 1000000, 3906},
		{"24bit negative", -1000000, -3907},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleFrom24Bit(t *testing.T) {
	assert.Equal(t, int32(0x123456), SampleFrom24Bit([3]byte{0x56, 0x34, 0x12}))
	assert.Equal(t, int32(-1), SampleFrom24Bit([3]byte{0xFF, 0xFF, 0xFF}))
	assert.Equal(t, int32(Min24Bit), SampleFrom24Bit([3]byte{0x00, 0x00, 0x80}))
}

func TestDecodeFloat(t *testing.T) {
	t.Run("8-bit unsigned", func(t *testing.T) {
		out := DecodeFloat(nil, []byte{0, 128, 255}, 8)
		require.Len(t, out, 3)
		assert.InDelta(t, -1.0, out[0], 1e-6)
		assert.InDelta(t, 0.0, out[1], 1e-6)
		assert.InDelta(t, 127.0/128, out[2], 1e-6)
	})

	t.Run("16-bit signed", func(t *testing.T) {
		pcm := make([]byte, 6)
		binary.LittleEndian.PutUint16(pcm[0:], uint16(0x8000)) // -32768
		binary.LittleEndian.PutUint16(pcm[2:], 16384)
		binary.LittleEndian.PutUint16(pcm[4:], 0)
		out := DecodeFloat(nil, append(pcm, 0x01), 16)
		require.Len(t, out, 3, "trailing partial sample must be ignored")
		assert.InDelta(t, -1.0, out[0], 1e-6)
		assert.InDelta(t, 0.5, out[1], 1e-6)
		assert.Zero(t, out[2])
	})

	t.Run("32-bit float", func(t *testing.T) {
		pcm := make([]byte, 8)
		binary.LittleEndian.PutUint32(pcm[0:], math.Float32bits(0.25))
		binary.LittleEndian.PutUint32(pcm[4:], math.Float32bits(float32(math.NaN())))
		out := DecodeFloat(nil, pcm, 32)
		require.Len(t, out, 2)
		assert.Equal(t, float32(0.25), out[0])
		assert.Zero(t, out[1])
	})

	t.Run("unsupported depth yields nothing", func(t *testing.T) {
		assert.Empty(t, DecodeFloat(nil, []byte{1, 2, 3, 4}, 12))
	})
}
