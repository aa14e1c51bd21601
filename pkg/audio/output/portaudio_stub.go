//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Reports the backend as unsupported unless built with the portaudio tag
package output

import (
	"fmt"

	"github.com/harperreed/emuaudio/pkg/audio"
)

// PortAudio backend (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio backend
func NewPortAudio() Backend {
	return &PortAudio{}
}

func (p *PortAudio) Name() string { return "portaudio" }

// Open always fails without the portaudio build tag
func (p *PortAudio) Open(audio.Format, Options) (Device, error) {
	return nil, fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrUnsupported)
}
