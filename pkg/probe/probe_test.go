// ABOUTME: Tests for the level probe
// ABOUTME: Verifies mono mixdown, ring ordering and RMS/clip analysis
package probe

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name        string
		samples     []float32
		wantRMS     float64
		wantClipped bool
	}{
		{"empty is silent", nil, 0, false},
		{"silence", []float32{0, 0, 0, 0}, 0, false},
		{"constant half", []float32{0.5, -0.5, 0.5, -0.5}, 0.5, false},
		{"just below threshold", []float32{0.98}, 0.98, false},
		{"at threshold clips", []float32{0, -0.985}, math.Sqrt(0.985 * 0.985 / 2), true},
		{"full scale", []float32{1, 1}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rms, clipped := Analyze(tt.samples)
			assert.InDelta(t, tt.wantRMS, rms, 1e-6)
			assert.Equal(t, tt.wantClipped, clipped)
		})
	}
}

func TestTapMixesToMono(t *testing.T) {
	tap := NewTap(8)
	tap.Write(s16(16384, 0, -16384, -16384), 16, 2)

	got := tap.Snapshot()
	require.Len(t, got, 2)
	assert.InDelta(t, 0.25, got[0], 1e-4)
	assert.InDelta(t, -0.5, got[1], 1e-4)
}

func TestTapKeepsMostRecent(t *testing.T) {
	tap := NewTap(3)
	tap.Write([]byte{128, 192, 255, 0, 64}, 8, 1)

	got := tap.Snapshot()
	require.Len(t, got, 3)
	assert.InDelta(t, 127.0/128, got[0], 1e-4)
	assert.InDelta(t, -1.0, got[1], 1e-4)
	assert.InDelta(t, -0.5, got[2], 1e-4)

	tap.Clear()
	assert.Empty(t, tap.Snapshot())
}
