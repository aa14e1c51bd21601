// ABOUTME: WAV decoding for file sources
// ABOUTME: Reads integer PCM through go-audio's wav decoder
package source

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errNotWav = errors.New("not a valid WAV file")

type wavStream struct {
	decoder  *wav.Decoder
	rate     int
	nchan    int
	bitDepth int
	buf      *goaudio.IntBuffer
}

func openWAV(r io.ReadSeeker) (stream, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errNotWav
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find WAV data: %w", err)
	}
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: WAV encoding %d (only integer PCM)", ErrUnsupportedFormat, d.WavAudioFormat)
	}

	bitDepth := int(d.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedFormat, bitDepth)
	}

	return &wavStream{
		decoder:  d,
		rate:     int(d.SampleRate),
		nchan:    int(d.NumChans),
		bitDepth: bitDepth,
		buf:      &goaudio.IntBuffer{Format: d.Format()},
	}, nil
}

func (s *wavStream) read(samples []int32) (int, error) {
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]

	n, err := s.decoder.PCMBuffer(s.buf)
	for i := 0; i < n; i++ {
		v := s.buf.Data[i]
		if s.bitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		samples[i] = scaleTo24(int32(v), s.bitDepth)
	}
	if n == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

func (s *wavStream) sampleRate() int { return s.rate }
func (s *wavStream) channels() int   { return s.nchan }
