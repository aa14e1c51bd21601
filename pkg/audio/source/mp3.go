// ABOUTME: MP3 decoding for file and HTTP sources
// ABOUTME: go-mp3 yields 16-bit stereo which is widened to the 24-bit range
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hajimehoshi/go-mp3"
	"github.com/harperreed/emuaudio/pkg/audio"
)

type mp3Stream struct {
	decoder *mp3.Decoder
	buf     []byte
}

func openMP3(r io.ReadSeeker) (stream, error) {
	return newMP3Stream(r)
}

func newMP3Stream(r io.Reader) (*mp3Stream, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &mp3Stream{decoder: decoder}, nil
}

func (s *mp3Stream) read(samples []int32) (int, error) {
	need := len(samples) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	count := n / 2
	for i := 0; i < count; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return count, err
}

func (s *mp3Stream) sampleRate() int { return s.decoder.SampleRate() }

// go-mp3 always outputs stereo
func (s *mp3Stream) channels() int { return 2 }

// HTTPMP3 streams MP3 from an HTTP URL. It ends at the end of the stream.
type HTTPMP3 struct {
	url    string
	body   io.ReadCloser
	stream *mp3Stream
}

// NewHTTPMP3 starts streaming url
func NewHTTPMP3(url string, logger *slog.Logger) (*HTTPMP3, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	st, err := newMP3Stream(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Streaming MP3 from HTTP", slog.String("url", url), slog.Int("sample_rate", st.sampleRate()))
	return &HTTPMP3{url: url, body: resp.Body, stream: st}, nil
}

func (s *HTTPMP3) Read(samples []int32) (int, error) { return s.stream.read(samples) }
func (s *HTTPMP3) SampleRate() int                   { return s.stream.sampleRate() }
func (s *HTTPMP3) Channels() int                     { return s.stream.channels() }
func (s *HTTPMP3) Title() string                     { return s.url }
func (s *HTTPMP3) Close() error                      { return s.body.Close() }
