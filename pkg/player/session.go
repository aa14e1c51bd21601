// ABOUTME: Player session lifecycle and activation handshake
// ABOUTME: Scoped listeners, settle delay and teardown for one opened device
package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/harperreed/emuaudio/pkg/transport"
)

// anyGen makes markRunning skip the settle generation check
const anyGen = -1

// session is everything created by one Init. Listener, timer and settle
// fields are guarded by Player.mu.
type session struct {
	id        string
	format    audio.Format
	debug     bool
	dev       output.Device
	module    output.Module
	transport transport.Transport
	strategy  strategy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	removers []func()
	timers   map[Kind]context.CancelFunc

	interactionArmed  bool
	interactionRemove func()

	settling  bool
	settleGen int
}

// teardown releases the current session exactly once: listeners first, then
// the device, then waits for every session goroutine
func (p *Player) teardown() {
	p.mu.Lock()
	s := p.sess
	if s == nil {
		p.mu.Unlock()
		return
	}
	p.sess = nil
	p.active.Store(nil)
	s.cancel()
	for kind, stop := range s.timers {
		stop()
		delete(s.timers, kind)
	}
	removers := s.removers
	s.removers = nil
	if s.interactionRemove != nil {
		removers = append(removers, s.interactionRemove)
		s.interactionRemove = nil
	}
	s.interactionArmed = false
	p.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	s.module.Tap().Clear()
	if err := s.dev.Close(); err != nil {
		p.logger.Warn("Failed to close audio device", slog.String("session", s.id), slog.Any("error", err))
	}
	s.wg.Wait()

	p.logger.Info("Audio session closed", slog.String("session", s.id))
}

// currentLocked reports whether s is still the active session (must hold p.mu)
func (p *Player) currentLocked(s *session) bool {
	return p.sess == s
}

func (p *Player) onDeviceState(s *session, st output.State) {
	switch st {
	case output.StateRunning:
		p.beginSettle(s)
	case output.StateSuspended:
		p.mu.Lock()
		if !p.currentLocked(s) {
			p.mu.Unlock()
			return
		}
		s.settling = false
		s.settleGen++
		p.mu.Unlock()
		p.enterBlocked(s)
	}
}

// enterBlocked reports the device as awaiting activation and arms the
// interaction retry
func (p *Player) enterBlocked(s *session) {
	p.mu.Lock()
	if !p.currentLocked(s) {
		p.mu.Unlock()
		return
	}
	p.state = StateBlocked
	p.reconcileTimersLocked(s)
	p.mu.Unlock()

	p.logger.Info("Audio blocked, waiting for user interaction", slog.String("session", s.id))
	p.armInteraction(s)
	p.emit(s.id, KindBlocked, nil)
}

// armInteraction registers a one-shot resume on the next user interaction
func (p *Player) armInteraction(s *session) {
	act := p.config.Activation
	if act == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.currentLocked(s) || s.interactionArmed {
		return
	}
	s.interactionArmed = true
	// Interact runs listeners after releasing its own lock, so the listener
	// cannot observe the session before interactionRemove is stored
	s.interactionRemove = act.OnInteraction(func() {
		p.onInteraction(s)
	})
}

func (p *Player) onInteraction(s *session) {
	p.mu.Lock()
	if !p.currentLocked(s) || !s.interactionArmed {
		p.mu.Unlock()
		return
	}
	s.interactionArmed = false
	remove := s.interactionRemove
	s.interactionRemove = nil
	p.mu.Unlock()

	if remove != nil {
		remove()
	}
	p.resume(s)
}

// resume asks the device to start and re-arms the interaction retry while it stays suspended
func (p *Player) resume(s *session) {
	if err := s.dev.Resume(); err != nil {
		p.logger.Debug("Resume attempt failed", slog.String("session", s.id), slog.Any("error", err))
	}
	if s.dev.State() == output.StateSuspended {
		p.armInteraction(s)
	}
}

// beginSettle waits the settle delay before reporting Running
func (p *Player) beginSettle(s *session) {
	p.mu.Lock()
	if !p.currentLocked(s) || s.settling || p.state == StateRunning {
		p.mu.Unlock()
		return
	}
	delay := p.config.SettleDelay
	if delay <= 0 {
		p.mu.Unlock()
		p.markRunning(s, anyGen)
		return
	}
	s.settling = true
	gen := s.settleGen
	s.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
		p.markRunning(s, gen)
	}()
}

// markRunning moves the session to Running and emits audio_running once per transition
func (p *Player) markRunning(s *session, gen int) {
	p.mu.Lock()
	if !p.currentLocked(s) || p.state == StateRunning || (gen != anyGen && gen != s.settleGen) {
		p.mu.Unlock()
		return
	}
	s.settling = false
	remove := s.interactionRemove
	s.interactionRemove = nil
	s.interactionArmed = false
	p.state = StateRunning
	p.reconcileTimersLocked(s)
	p.mu.Unlock()

	if remove != nil {
		remove()
	}

	p.logger.Info("Audio running", slog.String("session", s.id), slog.String("transport", string(s.strategy.Mode())))
	p.emit(s.id, KindRunning, nil)
}
