// ABOUTME: Ogg Vorbis decoding for file sources
// ABOUTME: Converts the decoder's float output to the 24-bit range
package source

import (
	"fmt"
	"io"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/jfreymuth/oggvorbis"
)

type oggStream struct {
	reader *oggvorbis.Reader
	buf    []float32
}

func openOgg(r io.ReadSeeker) (stream, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}
	return &oggStream{reader: reader}, nil
}

func (s *oggStream) read(samples []int32) (int, error) {
	// The decoder fills whole frames
	want := len(samples) - len(samples)%s.reader.Channels()
	if want == 0 {
		return 0, nil
	}
	if cap(s.buf) < want {
		s.buf = make([]float32, want)
	}
	buf := s.buf[:want]

	n, err := s.reader.Read(buf)
	for i := 0; i < n; i++ {
		v := min(max(buf[i], -1), 1)
		samples[i] = min(int32(v*(audio.Max24Bit+1)), audio.Max24Bit)
	}
	return n, err
}

func (s *oggStream) sampleRate() int { return s.reader.SampleRate() }
func (s *oggStream) channels() int   { return s.reader.Channels() }
