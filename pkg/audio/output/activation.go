// ABOUTME: User-activation gate for audio playback
// ABOUTME: Tracks whether a user gesture has happened and notifies listeners
package output

import "sync"

// Activation models an environment where audio may only start after the
// user interacts. Listeners fire on every interaction.
type Activation struct {
	mu        sync.Mutex
	granted   bool
	listeners map[uint64]func()
	nextID    uint64
}

// NewActivation creates a gate, optionally already granted
func NewActivation(granted bool) *Activation {
	return &Activation{granted: granted, listeners: make(map[uint64]func())}
}

// Interact records a user gesture, grants activation and runs listeners
func (a *Activation) Interact() {
	a.mu.Lock()
	a.granted = true
	fns := make([]func(), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Grant allows playback without an interaction, as when the platform
// remembers an earlier gesture. Listeners are not run.
func (a *Activation) Grant() {
	a.mu.Lock()
	a.granted = true
	a.mu.Unlock()
}

// Granted reports whether playback may start
func (a *Activation) Granted() bool {
	if a == nil {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted
}

// OnInteraction registers fn for subsequent interactions
func (a *Activation) OnInteraction(fn func()) (remove func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// Listeners returns how many interaction listeners are registered
func (a *Activation) Listeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}
