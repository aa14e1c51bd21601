// ABOUTME: Periodic telemetry for a running player session
// ABOUTME: Activity, probe and debug timers plus the renderer queue-stats relay
package player

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/harperreed/emuaudio/pkg/probe"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/transport"
)

// kindDebug keys the debug timer, which logs instead of notifying
const kindDebug Kind = "debug"

// reconcileTimersLocked starts the timers the session should have and stops
// the rest. Timers run only while Running and only for signals the delegate wants.
func (p *Player) reconcileTimersLocked(s *session) {
	running := p.state == StateRunning && p.currentLocked(s)

	p.setTimerLocked(s, KindActivity, running && p.interested(KindActivity), p.config.ActivityInterval, func() {
		p.tickActivity(s)
	})
	p.setTimerLocked(s, KindProbe, running && p.interested(KindProbe), p.config.ProbeInterval, func() {
		p.tickProbe(s)
	})
	p.setTimerLocked(s, kindDebug, running && s.debug, p.config.DebugInterval, func() {
		p.tickDebug(s)
	})
}

func (p *Player) setTimerLocked(s *session, kind Kind, want bool, every time.Duration, tick func()) {
	stop, have := s.timers[kind]
	switch {
	case want && !have:
		ctx, cancel := context.WithCancel(s.ctx)
		s.timers[kind] = cancel
		s.wg.Add(1)
		go p.runTimer(ctx, s, every, tick)
	case !want && have:
		stop()
		delete(s.timers, kind)
	}
}

func (p *Player) runTimer(ctx context.Context, s *session, every time.Duration, tick func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// tickActivity reports bytes enqueued since the previous tick as a rate
func (p *Player) tickActivity(s *session) {
	n := p.activity.Swap(0)
	rate := int64(float64(n) / p.config.ActivityInterval.Seconds())
	p.lastRate.Store(rate)
	p.emit(s.id, KindActivity, Activity{BytesPerSecond: rate})
}

func (p *Player) tickProbe(s *session) {
	rms, clipped := probe.Analyze(s.module.Tap().Snapshot())
	p.emit(s.id, KindProbe, ProbeSample{
		BytesPerSecond: p.lastRate.Load(),
		RMS:            rms,
		Clipped:        clipped,
		Source:         s.strategy.Mode(),
	})
}

func (p *Player) tickDebug(s *session) {
	occupancy := s.strategy.OccupancyBytes()
	reference := s.strategy.ReferenceBytes()
	fill := 0.0
	if reference > 0 {
		fill = float64(occupancy) * 100 / float64(reference)
	}
	p.logger.Debug("Audio buffer fill",
		slog.String("session", s.id),
		slog.String("transport", string(s.strategy.Mode())),
		slog.Int("occupancy_bytes", occupancy),
		slog.Float64("fill_percent", fill),
	)
}

// relayQueueStats forwards renderer statistics for the life of the session
func (p *Player) relayQueueStats(s *session) {
	defer s.wg.Done()
	stats := s.module.Stats()
	for {
		select {
		case <-s.ctx.Done():
			return
		case qs := <-stats:
			p.handleQueueStats(s, qs)
		}
	}
}

func (p *Player) handleQueueStats(s *session, qs protocol.QueueStats) {
	stats, ok := validateQueueStats(qs, s.strategy.Mode())
	if !ok {
		p.logger.Debug("Discarding malformed queue stats",
			slog.Float64("buffered_ms", qs.BufferedMs),
			slog.Float64("dropped_chunks", qs.DroppedChunks),
		)
		return
	}

	p.mu.Lock()
	if !p.currentLocked(s) {
		p.mu.Unlock()
		return
	}
	p.lastStats = stats
	running := p.state == StateRunning
	p.mu.Unlock()

	if running {
		p.emit(s.id, KindQueueStats, stats)
	}
}

// validateQueueStats rejects non-finite values and clamps the rest to be non-negative
func validateQueueStats(qs protocol.QueueStats, mode transport.Mode) (QueueStats, bool) {
	if !finite(qs.BufferedMs) || !finite(qs.DroppedChunks) {
		return QueueStats{}, false
	}
	var dropped int64
	switch {
	case qs.DroppedChunks >= math.MaxInt64:
		dropped = math.MaxInt64
	case qs.DroppedChunks > 0:
		dropped = int64(qs.DroppedChunks)
	}
	return QueueStats{
		BufferedMs:    math.Max(0, qs.BufferedMs),
		DroppedChunks: dropped,
		Mode:          mode,
	}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
