// ABOUTME: Oto-based audio output backend
// ABOUTME: Pulls PCM from the renderer through oto's io.Reader player
package output

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/emuaudio/pkg/audio"
)

// oto allows a single context per process, so it is shared by every device
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// Oto is a Backend using the oto library
type Oto struct {
	// BufferSize is oto's output buffer, zero for the library default
	BufferSize int
}

// NewOto creates an oto backend
func NewOto() *Oto {
	return &Oto{}
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) Open(format audio.Format, opts Options) (Device, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	ctx, err := o.context(format)
	if err != nil {
		return nil, err
	}

	d := &otoDevice{}
	d.localDevice = newLocalDevice(o.Name(), format, opts, hooks{
		start:   d.start,
		stop:    d.stop,
		release: d.release,
	})
	d.player = ctx.NewPlayer(d.localDevice)
	if o.BufferSize > 0 {
		d.player.SetBufferSize(o.BufferSize)
	}
	return d, nil
}

// context returns the process-wide oto context, creating it on first use
func (o *Oto) context(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat != format {
			return nil, fmt.Errorf("oto context already running at %s, cannot open %s", otoFormat, format)
		}
		return otoCtx, nil
	}

	var sampleFormat oto.Format
	switch format.SampleSizeBits {
	case 8:
		sampleFormat = oto.FormatUnsignedInt8
	case 16:
		sampleFormat = oto.FormatSignedInt16LE
	case 32:
		sampleFormat = oto.FormatFloat32LE
	default:
		return nil, fmt.Errorf("oto cannot play %d-bit audio: %w", format.SampleSizeBits, audio.ErrInvalidFormat)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       sampleFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %v", ErrUnsupported, err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

type otoDevice struct {
	*localDevice
	player *oto.Player
}

func (d *otoDevice) start() error {
	d.player.Play()
	return nil
}

func (d *otoDevice) stop() error {
	d.player.Pause()
	return nil
}

func (d *otoDevice) release() error {
	return d.player.Close()
}
