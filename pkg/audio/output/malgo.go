// ABOUTME: Malgo-based audio output backend
// ABOUTME: Uses miniaudio's data callback to pull PCM from the renderer
package output

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
	"github.com/harperreed/emuaudio/pkg/audio"
)

// Malgo is a Backend using miniaudio via malgo. It supports 24-bit output.
type Malgo struct{}

// NewMalgo creates a malgo backend
func NewMalgo() *Malgo {
	return &Malgo{}
}

func (m *Malgo) Name() string { return "malgo" }

func (m *Malgo) Open(format audio.Format, opts Options) (Device, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	var sampleFormat malgo.FormatType
	switch format.SampleSizeBits {
	case 8:
		sampleFormat = malgo.FormatU8
	case 16:
		sampleFormat = malgo.FormatS16
	case 24:
		sampleFormat = malgo.FormatS24
	case 32:
		sampleFormat = malgo.FormatF32
	default:
		return nil, fmt.Errorf("malgo cannot play %d-bit audio: %w", format.SampleSizeBits, audio.ErrInvalidFormat)
	}

	logger := loggerOrDefault(opts.Logger)
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize malgo context: %v", ErrUnsupported, err)
	}

	d := &malgoDevice{ctx: ctx, logger: logger}
	d.localDevice = newLocalDevice(m.Name(), format, opts, hooks{
		start:   d.start,
		stop:    d.stop,
		release: d.release,
	})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) {
			d.render(pOutput)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		d.release()
		return nil, fmt.Errorf("%w: failed to initialize playback device: %v", ErrUnsupported, err)
	}
	d.device = device

	logger.Info("Audio output opened",
		slog.String("backend", m.Name()),
		slog.String("format", format.String()),
		slog.String("sample_format", formatName(sampleFormat)),
	)
	return d, nil
}

type malgoDevice struct {
	*localDevice
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	logger *slog.Logger
}

func (d *malgoDevice) start() error {
	return d.device.Start()
}

func (d *malgoDevice) stop() error {
	return d.device.Stop()
}

func (d *malgoDevice) release() error {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		if err := d.ctx.Uninit(); err != nil {
			d.logger.Warn("malgo context uninit error", slog.Any("error", err))
		}
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatU8:
		return "U8"
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatF32:
		return "F32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
