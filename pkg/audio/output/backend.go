// ABOUTME: Backend lookup by name
// ABOUTME: Maps configuration strings to output backends
package output

import (
	"fmt"
	"time"
)

// Backends lists the names accepted by ByName
var Backends = []string{"oto", "malgo", "portaudio", "headless"}

// ByName returns the backend registered under name
func ByName(name string) (Backend, error) {
	switch name {
	case "", "oto":
		return NewOto(), nil
	case "malgo":
		return NewMalgo(), nil
	case "portaudio":
		return NewPortAudio(), nil
	case "headless":
		return NewHeadless(10 * time.Millisecond), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (available: %v)", name, Backends)
	}
}
