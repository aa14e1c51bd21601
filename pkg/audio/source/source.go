// ABOUTME: Audio source abstraction for the emulated producer
// ABOUTME: Opens looping MP3, FLAC, WAV and Ogg files, HTTP MP3 streams or a test tone
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file types without a decoder
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Source provides interleaved samples in the 24-bit range
type Source interface {
	// Read fills samples and returns how many were written
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	Title() string
	Close() error
}

// Open creates a source from a file path or HTTP URL. An empty path gives a
// 440Hz test tone at 44.1kHz stereo.
func Open(pathOrURL string, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pathOrURL == "" {
		return NewTone(440, 44100, 2), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return NewHTTPMP3(pathOrURL, logger)
	}

	if _, err := os.Stat(pathOrURL); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	var open streamOpener
	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		open = openMP3
	case ".flac":
		open = openFLAC
	case ".wav":
		open = openWAV
	case ".ogg", ".oga":
		open = openOgg
	default:
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac, .wav, .ogg)", ErrUnsupportedFormat, ext)
	}

	src, err := openFile(pathOrURL, open)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded audio file",
		slog.String("title", src.Title()),
		slog.Int("sample_rate", src.SampleRate()),
		slog.Int("channels", src.Channels()),
	)
	return src, nil
}

// stream decodes one pass over an encoded file
type stream interface {
	read(samples []int32) (int, error)
	sampleRate() int
	channels() int
}

type streamOpener func(r io.ReadSeeker) (stream, error)

// fileSource loops a decoded file forever
type fileSource struct {
	file   *os.File
	open   streamOpener
	stream stream
	title  string
}

func openFile(path string, open streamOpener) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	st, err := open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.sampleRate() <= 0 || st.channels() <= 0 {
		f.Close()
		return nil, fmt.Errorf("invalid stream parameters: %d Hz, %d channels", st.sampleRate(), st.channels())
	}

	name := filepath.Base(path)
	return &fileSource{
		file:   f,
		open:   open,
		stream: st,
		title:  strings.TrimSuffix(name, filepath.Ext(name)),
	}, nil
}

func (s *fileSource) Read(samples []int32) (int, error) {
	total := 0
	rewound := false
	for total < len(samples) {
		n, err := s.stream.read(samples[total:])
		total += n
		if n > 0 {
			rewound = false
		}
		if errors.Is(err, io.EOF) {
			// A pass that yields nothing right after rewinding means an empty file
			if rewound {
				return total, io.EOF
			}
			if err := s.rewind(); err != nil {
				return total, err
			}
			rewound = true
			continue
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *fileSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	st, err := s.open(s.file)
	if err != nil {
		return fmt.Errorf("failed to reopen stream: %w", err)
	}
	s.stream = st
	return nil
}

func (s *fileSource) SampleRate() int { return s.stream.sampleRate() }
func (s *fileSource) Channels() int   { return s.stream.channels() }
func (s *fileSource) Title() string   { return s.title }
func (s *fileSource) Close() error    { return s.file.Close() }
