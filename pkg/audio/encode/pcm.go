// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 8, 16, 24-bit integer or 32-bit float PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/harperreed/emuaudio/pkg/audio"
)

// PCMEncoder encodes samples for one sample size
type PCMEncoder struct {
	bits int
}

// NewPCM creates an encoder for format's sample size
func NewPCM(format audio.Format) (*PCMEncoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	switch format.SampleSizeBits {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported sample size: %d (supported: 8, 16, 24, 32)", format.SampleSizeBits)
	}
	return &PCMEncoder{bits: format.SampleSizeBits}, nil
}

// BytesPerSample returns the encoded size of one sample
func (e *PCMEncoder) BytesPerSample() int {
	return e.bits / 8
}

// Encode appends the encoded samples to dst
func (e *PCMEncoder) Encode(dst []byte, samples []int32) []byte {
	switch e.bits {
	case 8:
		for _, s := range samples {
			dst = append(dst, byte(clamp24(s)>>16+128))
		}
	case 16:
		for _, s := range samples {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(audio.SampleToInt16(clamp24(s))))
		}
	case 24:
		for _, s := range samples {
			b := audio.SampleTo24Bit(clamp24(s))
			dst = append(dst, b[0], b[1], b[2])
		}
	case 32:
		for _, s := range samples {
			f := float32(clamp24(s)) / (audio.Max24Bit + 1)
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
		}
	}
	return dst
}

func clamp24(s int32) int32 {
	return min(max(s, audio.Min24Bit), audio.Max24Bit)
}
