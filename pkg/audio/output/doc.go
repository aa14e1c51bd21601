// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Backend/Device contracts and oto, malgo, PortAudio and headless backends
// Package output opens audio devices and attaches renderers to them.
//
// Devices open suspended. Resume succeeds only once the Activation gate has
// been granted by a user gesture; state changes are delivered to listeners
// registered with OnStateChange.
//
// Example:
//
//	dev, err := output.NewOto().Open(format, output.Options{Activation: act})
//	mod, err := dev.Load(renderer.Config{Mode: transport.ModeShared, Format: format, Ring: ring})
//	err = dev.Resume()
package output
