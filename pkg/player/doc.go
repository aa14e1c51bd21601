// ABOUTME: Player package documentation
// ABOUTME: Describes the session lifecycle and the notifications it emits
// Package player orchestrates an audio session: it opens the output device,
// chooses a transport, loads the renderer and reports what happens through
// notifications.
//
// Lifecycle:
//
//	Uninitialized -> Initializing -> Blocked -> Running -> Stopped
//
// A device that needs a user gesture leaves the session Blocked; every
// interaction retries until the device runs. Running is reported after a
// settle delay so the renderer can pre-fill.
//
// Example:
//
//	p := player.New(player.Config{Backend: output.NewOto(), Activation: act})
//	p.SetDelegate(player.DelegateFunc(func(n player.Notification) { ... }))
//	if err := p.Init(ctx, format, false); err != nil { ... }
//	p.Enqueue(pcm)
package player
