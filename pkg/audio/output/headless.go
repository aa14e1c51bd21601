// ABOUTME: Headless output backend without real audio hardware
// ABOUTME: Paces the renderer from a ticker or lets callers pump it directly
package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
)

// Headless is a Backend that consumes audio without playing it. It is used
// on servers, in CI and whenever no sound card is present.
type Headless struct {
	// Period paces the render loop while running; zero disables the loop
	Period time.Duration

	// Unsupported makes Open fail with ErrUnsupported
	Unsupported bool

	opened atomic.Int64
	mu     sync.Mutex
	last   *HeadlessDevice
}

// NewHeadless creates a headless backend rendering every period
func NewHeadless(period time.Duration) *Headless {
	return &Headless{Period: period}
}

func (h *Headless) Name() string { return "headless" }

func (h *Headless) Open(format audio.Format, opts Options) (Device, error) {
	if h.Unsupported {
		return nil, ErrUnsupported
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	d := &HeadlessDevice{period: h.Period}
	d.localDevice = newLocalDevice(h.Name(), format, opts, hooks{
		start: d.start,
		stop:  d.stop,
	})

	h.opened.Add(1)
	h.mu.Lock()
	h.last = d
	h.mu.Unlock()
	return d, nil
}

// Opened returns how many devices this backend has opened
func (h *Headless) Opened() int {
	return int(h.opened.Load())
}

// Last returns the most recently opened device
func (h *Headless) Last() *HeadlessDevice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// HeadlessDevice renders into a scratch buffer at a fixed pace
type HeadlessDevice struct {
	*localDevice
	period   time.Duration
	rendered atomic.Int64
	starts   atomic.Int64

	loopMu sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
}

// Pump renders n bytes synchronously and returns them
func (d *HeadlessDevice) Pump(n int) []byte {
	out := make([]byte, n)
	d.render(out)
	d.rendered.Add(int64(n))
	return out
}

// Rendered returns the total bytes pulled from the renderer
func (d *HeadlessDevice) Rendered() int64 {
	return d.rendered.Load()
}

// Starts returns how many times the device has been started
func (d *HeadlessDevice) Starts() int {
	return int(d.starts.Load())
}

func (d *HeadlessDevice) start() error {
	d.starts.Add(1)
	if d.period <= 0 {
		return nil
	}

	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	d.done = make(chan struct{})
	d.wg.Add(1)
	go d.loop(d.done, d.format.MillisToBytes(int(d.period/time.Millisecond)))
	return nil
}

func (d *HeadlessDevice) stop() error {
	d.loopMu.Lock()
	if d.done != nil {
		close(d.done)
		d.done = nil
	}
	d.loopMu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *HeadlessDevice) loop(done <-chan struct{}, chunk int) {
	defer d.wg.Done()
	if chunk <= 0 {
		chunk = d.format.FrameSize()
	}
	buf := make([]byte, chunk)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.render(buf)
			d.rendered.Add(int64(chunk))
		}
	}
}
