//go:build portaudio

// ABOUTME: PortAudio output backend
// ABOUTME: Cross-platform audio output using a PortAudio stream callback
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/harperreed/emuaudio/pkg/audio"
)

var paRefs struct {
	sync.Mutex
	refs int
}

// PortAudio is a Backend using the PortAudio library
type PortAudio struct{}

// NewPortAudio creates a PortAudio backend
func NewPortAudio() Backend {
	return &PortAudio{}
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Open(format audio.Format, opts Options) (Device, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if err := paAcquire(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %v", ErrUnsupported, err)
	}

	d := &portAudioDevice{}
	d.localDevice = newLocalDevice(p.Name(), format, opts, hooks{
		start:   func() error { return d.stream.Start() },
		stop:    func() error { return d.stream.Stop() },
		release: d.release,
	})

	var callback interface{}
	switch format.SampleSizeBits {
	case 16:
		callback = func(out []int16) {
			buf := d.scratch(len(out) * 2)
			d.render(buf)
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
			}
		}
	case 32:
		callback = func(out []float32) {
			buf := d.scratch(len(out) * 4)
			d.render(buf)
			for i := range out {
				out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
			}
		}
	default:
		paRelease()
		return nil, fmt.Errorf("portaudio backend cannot play %d-bit audio: %w", format.SampleSizeBits, audio.ErrInvalidFormat)
	}

	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), 0, callback)
	if err != nil {
		paRelease()
		return nil, fmt.Errorf("%w: failed to open stream: %v", ErrUnsupported, err)
	}
	d.stream = stream
	return d, nil
}

type portAudioDevice struct {
	*localDevice
	stream *portaudio.Stream
	buf    []byte
}

// scratch is only touched from the stream callback
func (d *portAudioDevice) scratch(n int) []byte {
	if cap(d.buf) < n {
		d.buf = make([]byte, n)
	}
	return d.buf[:n]
}

func (d *portAudioDevice) release() error {
	err := d.stream.Close()
	paRelease()
	return err
}

func paAcquire() error {
	paRefs.Lock()
	defer paRefs.Unlock()
	if paRefs.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return err
		}
	}
	paRefs.refs++
	return nil
}

func paRelease() {
	paRefs.Lock()
	defer paRefs.Unlock()
	paRefs.refs--
	if paRefs.refs == 0 {
		portaudio.Terminate()
	}
}
