// ABOUTME: Test tone generator for audio sources
// ABOUTME: Generates a sine wave at half volume on every channel
package source

import (
	"fmt"
	"math"
	"sync"

	"github.com/harperreed/emuaudio/pkg/audio"
)

// Tone generates a sine wave
type Tone struct {
	mu         sync.Mutex
	frame      uint64
	frequency  float64
	sampleRate int
	channels   int
}

// NewTone creates a sine generator
func NewTone(frequency float64, sampleRate, channels int) *Tone {
	return &Tone{frequency: frequency, sampleRate: sampleRate, channels: channels}
}

func (s *Tone) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(samples) / s.channels
	for i := 0; i < frames; i++ {
		t := float64(s.frame+uint64(i)) / float64(s.sampleRate)
		v := int32(math.Sin(2*math.Pi*s.frequency*t) * audio.Max24Bit * 0.5)
		for c := 0; c < s.channels; c++ {
			samples[i*s.channels+c] = v
		}
	}
	s.frame += uint64(frames)
	return frames * s.channels, nil
}

func (s *Tone) SampleRate() int { return s.sampleRate }
func (s *Tone) Channels() int   { return s.channels }
func (s *Tone) Title() string   { return fmt.Sprintf("Test Tone %.0fHz", s.frequency) }
func (s *Tone) Close() error    { return nil }
