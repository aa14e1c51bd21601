// ABOUTME: Audio output interface definitions
// ABOUTME: Backend, Device and Module contracts shared by every playback backend
package output

import (
	"errors"
	"log/slog"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/probe"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/renderer"
)

var (
	// ErrUnsupported means the platform has no usable audio output
	ErrUnsupported = errors.New("audio output unsupported")

	// ErrClosed is returned by operations on a closed device
	ErrClosed = errors.New("audio device closed")

	// ErrNotActivated means the device refused to start before a user gesture
	ErrNotActivated = errors.New("audio device awaiting user interaction")

	// ErrSharedMemory means a shared-memory renderer was requested from a device that cannot reach the producer's memory
	ErrSharedMemory = errors.New("device cannot share memory with the producer")
)

// State of an output device
type State string

const (
	StateSuspended State = protocol.StateSuspended
	StateRunning   State = protocol.StateRunning
	StateClosed    State = protocol.StateClosed
)

// Options passed to Backend.Open
type Options struct {
	// Activation gates Resume; nil means the device may always start
	Activation *Activation
	Logger     *slog.Logger
}

// Backend opens output devices
type Backend interface {
	Name() string
	Open(format audio.Format, opts Options) (Device, error)
}

// Device is an opened audio output. Devices start suspended.
type Device interface {
	State() State

	// Resume asks the device to start. It may stay suspended.
	Resume() error
	Suspend() error

	// OnStateChange registers fn for every state transition; remove is idempotent
	OnStateChange(fn func(State)) (remove func())

	// SharedMemory reports whether the renderer runs in the producer's address space
	SharedMemory() bool

	// Load attaches the renderer that will fill the device's buffers
	Load(cfg renderer.Config) (Module, error)

	Close() error
}

// Module is the renderer as seen from the producer side
type Module interface {
	Post(msg protocol.Message)
	Stats() <-chan protocol.QueueStats
	Tap() *probe.Tap
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
