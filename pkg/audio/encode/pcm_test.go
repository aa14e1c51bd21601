// ABOUTME: Unit tests for PCM encoder
// ABOUTME: Tests 8, 16, 24-bit integer and 32-bit float encoding
package encode

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name        string
		format      audio.Format
		wantErr     bool
		errContains string
	}{
		{"8-bit mono", audio.Format{SampleRate: 22050, SampleSizeBits: 8, Channels: 1}, false, ""},
		{"16-bit stereo", audio.Format{SampleRate: 44100, SampleSizeBits: 16, Channels: 2}, false, ""},
		{"24-bit stereo", audio.Format{SampleRate: 48000, SampleSizeBits: 24, Channels: 2}, false, ""},
		{"float stereo", audio.Format{SampleRate: 48000, SampleSizeBits: 32, Channels: 2}, false, ""},
		{"12-bit", audio.Format{SampleRate: 8000, SampleSizeBits: 12, Channels: 1}, true, "unsupported sample size"},
		{"zero rate", audio.Format{SampleSizeBits: 16, Channels: 2}, true, "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewPCM(tt.format)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format.BytesPerSample(), enc.BytesPerSample())
		})
	}
}

func TestPCMEncoder_Encode16Bit(t *testing.T) {
	enc, err := NewPCM(audio.Format{SampleRate: 44100, SampleSizeBits: 16, Channels: 2})
	require.NoError(t, err)

	samples := []int32{0, 0x7FFF00, -0x800000, 0x123400, -0x567800}
	out := enc.Encode(nil, samples)
	require.Len(t, out, len(samples)*2)

	for i, s := range samples {
		assert.Equal(t, audio.SampleToInt16(s), int16(binary.LittleEndian.Uint16(out[i*2:])), "sample %d", i)
	}
}

func TestPCMEncoder_Encode24Bit(t *testing.T) {
	enc, err := NewPCM(audio.Format{SampleRate: 48000, SampleSizeBits: 24, Channels: 2})
	require.NoError(t, err)

	samples := []int32{0, 0x7FFFFF, -0x800000, 0x123456, -0x567890}
	out := enc.Encode(nil, samples)
	require.Len(t, out, len(samples)*3)

	for i, s := range samples {
		got := audio.SampleFrom24Bit([3]byte{out[i*3], out[i*3+1], out[i*3+2]})
		assert.Equal(t, s, got, "sample %d", i)
	}
}

func TestPCMEncoder_Encode8BitUnsigned(t *testing.T) {
	enc, err := NewPCM(audio.Format{SampleRate: 8000, SampleSizeBits: 8, Channels: 1})
	require.NoError(t, err)

	out := enc.Encode(nil, []int32{0, audio.Max24Bit, audio.Min24Bit})
	assert.Equal(t, []byte{128, 255, 0}, out)
}

func TestPCMEncoder_EncodeFloat(t *testing.T) {
	enc, err := NewPCM(audio.Format{SampleRate: 48000, SampleSizeBits: 32, Channels: 1})
	require.NoError(t, err)

	out := enc.Encode(nil, []int32{0, -0x800000, 0x400000})
	require.Len(t, out, 12)

	values := make([]float32, 3)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	assert.Equal(t, []float32{0, -1, 0.5}, values)
}

func TestPCMEncoder_ClampsOutOfRange(t *testing.T) {
	enc, err := NewPCM(audio.Format{SampleRate: 44100, SampleSizeBits: 16, Channels: 1})
	require.NoError(t, err)

	out := enc.Encode(nil, []int32{0x7FFFFFFF, -0x7FFFFFFF})
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(out)))
	assert.Equal(t, int16(math.MinInt16), int16(binary.LittleEndian.Uint16(out[2:])))
}

func TestPCMEncoder_RoundTripsThroughDecodeFloat(t *testing.T) {
	for _, bits := range []int{8, 16, 24, 32} {
		enc, err := NewPCM(audio.Format{SampleRate: 8000, SampleSizeBits: bits, Channels: 1})
		require.NoError(t, err)

		decoded := audio.DecodeFloat(nil, enc.Encode(nil, []int32{0x400000}), bits)
		require.Len(t, decoded, 1)
		assert.InDelta(t, 0.5, decoded[0], 0.01, "bits=%d", bits)
	}
}
