// ABOUTME: Shared state machine for in-process output devices
// ABOUTME: Handles activation gating, state listeners and renderer attachment
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/renderer"
)

// hooks connect a localDevice to the hardware API behind it
type hooks struct {
	start   func() error
	stop    func() error
	release func() error
}

// localDevice runs its renderer inside the producer process, so it always
// supports shared memory
type localDevice struct {
	name       string
	format     audio.Format
	activation *Activation
	logger     *slog.Logger
	hooks      hooks

	rend atomic.Pointer[renderer.Renderer]

	mu        sync.Mutex
	state     State
	listeners map[uint64]func(State)
	nextID    uint64
}

func newLocalDevice(name string, format audio.Format, opts Options, h hooks) *localDevice {
	return &localDevice{
		name:       name,
		format:     format,
		activation: opts.Activation,
		logger:     loggerOrDefault(opts.Logger).With(slog.String("backend", name)),
		hooks:      h,
		state:      StateSuspended,
		listeners:  make(map[uint64]func(State)),
	}
}

func (d *localDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *localDevice) SharedMemory() bool { return true }

func (d *localDevice) Resume() error {
	d.mu.Lock()
	switch d.state {
	case StateClosed:
		d.mu.Unlock()
		return ErrClosed
	case StateRunning:
		d.mu.Unlock()
		return nil
	}
	if !d.activation.Granted() {
		d.mu.Unlock()
		return ErrNotActivated
	}
	if d.hooks.start != nil {
		if err := d.hooks.start(); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to start %s device: %w", d.name, err)
		}
	}
	fns := d.transitionLocked(StateRunning)
	d.mu.Unlock()

	notify(fns, StateRunning)
	return nil
}

func (d *localDevice) Suspend() error {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return nil
	}
	if d.hooks.stop != nil {
		if err := d.hooks.stop(); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to stop %s device: %w", d.name, err)
		}
	}
	fns := d.transitionLocked(StateSuspended)
	d.mu.Unlock()

	notify(fns, StateSuspended)
	return nil
}

func (d *localDevice) Close() error {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return nil
	}
	var errs []error
	if d.state == StateRunning && d.hooks.stop != nil {
		errs = append(errs, d.hooks.stop())
	}
	if d.hooks.release != nil {
		errs = append(errs, d.hooks.release())
	}
	fns := d.transitionLocked(StateClosed)
	d.listeners = make(map[uint64]func(State))
	d.mu.Unlock()

	notify(fns, StateClosed)
	return errors.Join(errs...)
}

func (d *localDevice) OnStateChange(fn func(State)) (remove func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

func (d *localDevice) Load(cfg renderer.Config) (Module, error) {
	if d.State() == StateClosed {
		return nil, ErrClosed
	}
	if cfg.Logger == nil {
		cfg.Logger = d.logger
	}
	r, err := renderer.New(cfg)
	if err != nil {
		return nil, err
	}
	if !d.rend.CompareAndSwap(nil, r) {
		return nil, fmt.Errorf("%s device already has a renderer", d.name)
	}
	return r, nil
}

// render fills out from the attached renderer, or with silence before one is loaded
func (d *localDevice) render(out []byte) int {
	r := d.rend.Load()
	if r == nil {
		clear(out)
		return 0
	}
	return r.Render(out)
}

// Read lets pull-style APIs consume the device directly
func (d *localDevice) Read(p []byte) (int, error) {
	d.render(p)
	return len(p), nil
}

// transitionLocked sets the state and returns the listeners to notify
func (d *localDevice) transitionLocked(s State) []func(State) {
	if d.state == s {
		return nil
	}
	d.logger.Debug("Audio device state change", slog.String("from", string(d.state)), slog.String("to", string(s)))
	d.state = s
	fns := make([]func(State), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), s State) {
	for _, fn := range fns {
		fn(s)
	}
}
