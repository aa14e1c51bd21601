// ABOUTME: Audio type definitions
// ABOUTME: Defines the session PCM format and sample conversion helpers
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// Baseline format assumed before a producer declares its own:
	// 22050Hz, 16-bit, 4 channels worth of throughput.
	DefaultSampleRate     = 22050
	DefaultBytesPerSecond = DefaultSampleRate * 2 * 4
)

// ErrInvalidFormat is returned when a format field is not positive
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes the raw PCM stream produced by the emulated machine
type Format struct {
	SampleRate     int `json:"sampleRate" yaml:"sample_rate"`
	SampleSizeBits int `json:"sampleSizeBits" yaml:"sample_size_bits"`
	Channels       int `json:"channels" yaml:"channels"`
}

// Validate checks that every field is positive
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.SampleSizeBits <= 0 {
		return fmt.Errorf("%w: sample size must be positive, got %d", ErrInvalidFormat, f.SampleSizeBits)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidFormat, f.Channels)
	}
	return nil
}

// BytesPerSample returns the storage size of one sample, never less than one byte
func (f Format) BytesPerSample() int {
	return max(1, f.SampleSizeBits/8)
}

// FrameSize returns the number of bytes in one interleaved frame
func (f Format) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// BytesPerSecond returns the stream throughput
func (f Format) BytesPerSecond() int {
	return BytesPerSecond(f.SampleRate, f.SampleSizeBits, f.Channels)
}

// BytesToMillis converts a byte count into milliseconds of audio at this format
func (f Format) BytesToMillis(n int) float64 {
	bps := f.BytesPerSecond()
	if bps <= 0 || n <= 0 {
		return 0
	}
	return float64(n) * 1000 / float64(bps)
}

// MillisToBytes converts a duration in milliseconds into a frame-aligned byte count
func (f Format) MillisToBytes(ms int) int {
	n := f.BytesPerSecond() * ms / 1000
	if frame := f.FrameSize(); frame > 0 {
		n -= n % frame
	}
	return n
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.SampleSizeBits, f.Channels)
}

// BytesPerSecond computes sampleRate * max(1, sampleSizeBits/8) * channels
func BytesPerSecond(sampleRate, sampleSizeBits, channels int) int {
	return sampleRate * max(1, sampleSizeBits/8) * channels
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts a 16-bit sample to the 24-bit range
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit packs an int32 sample in the 24-bit range into little-endian bytes
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{byte(sample), byte(sample >> 8), byte(sample >> 16)}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// DecodeFloat converts interleaved little-endian PCM into normalized samples in [-1, 1].
// 8-bit is unsigned, 16 and 24-bit are signed integers and 32-bit is IEEE float.
// Trailing bytes that do not form a whole sample are ignored.
func DecodeFloat(dst []float32, pcm []byte, sampleSizeBits int) []float32 {
	switch sampleSizeBits {
	case 8:
		for _, b := range pcm {
			dst = append(dst, (float32(b)-128)/128)
		}
	case 16:
		for i := 0; i+2 <= len(pcm); i += 2 {
			s := int16(binary.LittleEndian.Uint16(pcm[i:]))
			dst = append(dst, float32(s)/32768)
		}
	case 24:
		for i := 0; i+3 <= len(pcm); i += 3 {
			s := SampleFrom24Bit([3]byte{pcm[i], pcm[i+1], pcm[i+2]})
			dst = append(dst, float32(s)/(Max24Bit+1))
		}
	case 32:
		for i := 0; i+4 <= len(pcm); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(pcm[i:]))
			if math.IsNaN(float64(v)) {
				v = 0
			}
			dst = append(dst, v)
		}
	}
	return dst
}
