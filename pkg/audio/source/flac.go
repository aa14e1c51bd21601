// ABOUTME: FLAC decoding for file sources
// ABOUTME: Buffers partially consumed frames and rescales any bit depth to 24-bit
package source

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

type flacStream struct {
	stream   *flac.Stream
	rate     int
	nchan    int
	bitDepth int
	pending  []int32
}

func openFLAC(r io.ReadSeeker) (stream, error) {
	st, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	return &flacStream{
		stream:   st,
		rate:     int(st.Info.SampleRate),
		nchan:    int(st.Info.NChannels),
		bitDepth: int(st.Info.BitsPerSample),
	}, nil
}

func (s *flacStream) read(samples []int32) (int, error) {
	total := 0
	for total < len(samples) {
		if len(s.pending) == 0 {
			if err := s.parseFrame(); err != nil {
				return total, err
			}
			continue
		}
		n := copy(samples[total:], s.pending)
		s.pending = s.pending[n:]
		total += n
	}
	return total, nil
}

// parseFrame interleaves the next frame into pending
func (s *flacStream) parseFrame() error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		return err
	}

	block := int(frame.BlockSize)
	s.pending = make([]int32, 0, block*s.nchan)
	for i := 0; i < block; i++ {
		for ch := 0; ch < s.nchan; ch++ {
			s.pending = append(s.pending, scaleTo24(frame.Subframes[ch].Samples[i], s.bitDepth))
		}
	}
	return nil
}

func (s *flacStream) sampleRate() int { return s.rate }
func (s *flacStream) channels() int   { return s.nchan }

// scaleTo24 shifts a signed sample of the given bit depth into the 24-bit range
func scaleTo24(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24:
		return sample
	case bitDepth > 24:
		return sample >> (bitDepth - 24)
	default:
		return sample << (24 - bitDepth)
	}
}
