// ABOUTME: Audio player orchestrating device, transport and telemetry
// ABOUTME: Owns the activation handshake, flush, stop and periodic notifications
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/harperreed/emuaudio/pkg/audio/ringbuf"
	"github.com/harperreed/emuaudio/pkg/renderer"
	"github.com/harperreed/emuaudio/pkg/transport"
)

const (
	DefaultSettleDelay      = 250 * time.Millisecond
	DefaultActivityInterval = time.Second
	DefaultProbeInterval    = time.Second
	DefaultDebugInterval    = 100 * time.Millisecond
	DefaultNotifyBuffer     = 64
)

// State of the player
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateBlocked
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateBlocked:
		return "blocked"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FlushReason says why buffered audio is being discarded
type FlushReason string

const (
	FlushBlur   FlushReason = "blur"
	FlushHidden FlushReason = "hidden"
	FlushFreeze FlushReason = "freeze"
	FlushManual FlushReason = "manual"
)

// Config holds player configuration
type Config struct {
	// Backend opens the output device
	Backend output.Backend

	// Activation is the user-gesture gate shared with the backend; nil means always allowed
	Activation *output.Activation

	// ForceMessage selects the message transport even when shared memory is available
	ForceMessage bool

	// SettleDelay is waited after the device starts before Running is reported.
	// Zero uses DefaultSettleDelay, negative reports Running immediately.
	SettleDelay time.Duration

	ActivityInterval time.Duration
	ProbeInterval    time.Duration
	DebugInterval    time.Duration

	// RingCapacity sizes the shared-memory ring in bytes
	RingCapacity int

	// MaxBufferedMs caps the renderer's jitter queue in message mode
	MaxBufferedMs int

	// TapSize is the number of mono samples kept for probing
	TapSize int

	// NotifyBuffer is the notification queue length
	NotifyBuffer int

	Logger *slog.Logger
}

// Player drives one audio session at a time
type Player struct {
	config Config
	logger *slog.Logger

	// initMu serializes Init, Stop and Close
	initMu sync.Mutex

	mu        sync.Mutex
	state     State
	sess      *session
	lastStats QueueStats

	active   atomic.Pointer[session]
	activity atomic.Int64
	lastRate atomic.Int64

	delegateMu sync.RWMutex
	delegate   Delegate
	interest   map[Kind]bool

	notifyMu     sync.RWMutex
	notifyClosed bool
	notes        chan Notification
	dispatchDone chan struct{}
}

// New creates a player with default values applied
func New(config Config) *Player {
	if config.Backend == nil {
		config.Backend = output.NewOto()
	}
	if config.SettleDelay == 0 {
		config.SettleDelay = DefaultSettleDelay
	}
	if config.ActivityInterval <= 0 {
		config.ActivityInterval = DefaultActivityInterval
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = DefaultProbeInterval
	}
	if config.DebugInterval <= 0 {
		config.DebugInterval = DefaultDebugInterval
	}
	if config.RingCapacity <= 0 {
		config.RingCapacity = ringbuf.DefaultCapacity
	}
	if config.MaxBufferedMs <= 0 {
		config.MaxBufferedMs = renderer.DefaultMaxBufferedMs
	}
	if config.NotifyBuffer <= 0 {
		config.NotifyBuffer = DefaultNotifyBuffer
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	p := &Player{
		config:       config,
		logger:       config.Logger.With(slog.String("component", "player")),
		notes:        make(chan Notification, config.NotifyBuffer),
		dispatchDone: make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// SetDelegate registers the notification receiver and the kinds it wants.
// No kinds means all of them. Telemetry timers follow the registered interest.
func (p *Player) SetDelegate(d Delegate, kinds ...Kind) {
	p.delegateMu.Lock()
	p.delegate = d
	p.interest = nil
	if len(kinds) > 0 {
		p.interest = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			p.interest[k] = true
		}
	}
	p.delegateMu.Unlock()

	p.mu.Lock()
	if p.sess != nil {
		p.reconcileTimersLocked(p.sess)
	}
	p.mu.Unlock()
}

// Init opens the output device and starts a session. Any previous session is
// torn down first. An unsupported platform is logged and is not an error.
func (p *Player) Init(ctx context.Context, format audio.Format, debug bool) error {
	if err := format.Validate(); err != nil {
		return err
	}

	p.initMu.Lock()
	defer p.initMu.Unlock()

	p.teardown()
	p.resetCounters()
	p.setState(StateInitializing)

	if err := ctx.Err(); err != nil {
		p.setState(StateStopped)
		return err
	}

	dev, err := p.config.Backend.Open(format, output.Options{
		Activation: p.config.Activation,
		Logger:     p.config.Logger,
	})
	if errors.Is(err, output.ErrUnsupported) {
		p.logger.Warn("Real-time audio is not supported, continuing without sound",
			slog.String("backend", p.config.Backend.Name()),
			slog.Any("error", err),
		)
		p.setState(StateUninitialized)
		return nil
	}
	if err != nil {
		p.setState(StateStopped)
		return fmt.Errorf("failed to open audio device: %w", err)
	}

	s, err := p.newSession(ctx, format, debug, dev)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			p.logger.Warn("Failed to close audio device", slog.Any("error", cerr))
		}
		p.setState(StateStopped)
		return err
	}

	p.mu.Lock()
	p.sess = s
	p.active.Store(s)
	p.lastStats = QueueStats{Mode: s.strategy.Mode()}
	s.wg.Add(1)
	go p.relayQueueStats(s)
	p.mu.Unlock()

	p.logger.Info("Audio session opened",
		slog.String("session", s.id),
		slog.String("backend", p.config.Backend.Name()),
		slog.String("transport", string(s.strategy.Mode())),
		slog.String("format", format.String()),
	)
	p.emit(s.id, KindOpen, Open(format))

	// Platforms that already permit playback start the device on open
	if p.config.Activation.Granted() {
		if err := dev.Resume(); err != nil {
			p.logger.Debug("Autostart failed", slog.Any("error", err))
		}
	}

	remove := dev.OnStateChange(func(st output.State) {
		p.onDeviceState(s, st)
	})
	p.mu.Lock()
	s.removers = append(s.removers, remove)
	p.mu.Unlock()

	if dev.State() == output.StateRunning {
		p.markRunning(s, anyGen)
		return nil
	}

	p.enterBlocked(s)
	if err := dev.Resume(); err != nil {
		p.logger.Debug("Immediate resume failed", slog.Any("error", err))
	}
	return nil
}

// newSession builds the transport and loads the renderer into dev
func (p *Player) newSession(ctx context.Context, format audio.Format, debug bool, dev output.Device) (*session, error) {
	mode := transport.Select(dev.SharedMemory(), p.config.ForceMessage)
	rcfg := renderer.Config{
		Mode:          mode,
		Format:        format,
		MaxBufferedMs: p.config.MaxBufferedMs,
		TapSize:       p.config.TapSize,
		Logger:        p.config.Logger,
	}

	var ring *ringbuf.Buffer
	if mode == transport.ModeShared {
		var err error
		ring, err = ringbuf.New(p.config.RingCapacity)
		if err != nil {
			return nil, err
		}
		rcfg.Ring = ring
	}

	module, err := dev.Load(rcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load renderer: %w", err)
	}

	s := &session{
		id:     uuid.New().String(),
		format: format,
		debug:  debug,
		dev:    dev,
		module: module,
		timers: make(map[Kind]context.CancelFunc),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if mode == transport.ModeShared {
		t := transport.NewShared(ring, p.config.Logger)
		s.transport = t
		s.strategy = sharedStrategy{Shared: t, format: format}
	} else {
		t := transport.NewFallback(module, p.config.Logger)
		s.transport = t
		s.strategy = messageStrategy{Fallback: t, format: format, maxBufferedMs: p.config.MaxBufferedMs}
	}
	return s, nil
}

// Enqueue hands PCM to the active transport. It never blocks; without a session the bytes are dropped.
func (p *Player) Enqueue(b []byte) {
	s := p.active.Load()
	if s == nil {
		return
	}
	s.transport.Enqueue(b)
	p.activity.Add(int64(len(b)))
}

// DeclareFormat updates the message transport's drain rate. Shared memory ignores it.
func (p *Player) DeclareFormat(sampleRate, sampleSizeBits, channels int) {
	s := p.active.Load()
	if s == nil {
		return
	}
	if d, ok := s.transport.(transport.FormatDeclarer); ok {
		d.DeclareFormat(sampleRate, sampleSizeBits, channels)
	}
}

// OccupancyBytes reports buffered-but-unplayed bytes, 0 without a session
func (p *Player) OccupancyBytes() int {
	s := p.active.Load()
	if s == nil {
		return 0
	}
	return s.strategy.OccupancyBytes()
}

// Mode returns the active transport, empty without a session
func (p *Player) Mode() transport.Mode {
	s := p.active.Load()
	if s == nil {
		return ""
	}
	return s.strategy.Mode()
}

// RequestResume re-attempts device activation. Safe in any state.
func (p *Player) RequestResume() {
	p.mu.Lock()
	s := p.sess
	running := p.state == StateRunning
	p.mu.Unlock()
	if s == nil || running {
		return
	}
	p.resume(s)
}

// Flush discards buffered audio and returns how many milliseconds were dropped
func (p *Player) Flush(reason FlushReason) float64 {
	s := p.active.Load()
	if s == nil {
		return 0
	}

	dropped := droppedMillis(s.strategy, s.strategy.OccupancyBytes())
	s.strategy.Reset()

	p.mu.Lock()
	stats := QueueStats{DroppedChunks: p.lastStats.DroppedChunks, Mode: s.strategy.Mode()}
	if p.sess == s {
		p.lastStats = stats
	}
	p.mu.Unlock()

	p.logger.Info("Flushed audio",
		slog.String("reason", string(reason)),
		slog.Float64("dropped_ms", dropped),
	)
	p.emit(s.id, KindQueueStats, stats)
	return dropped
}

// Stop closes the device, releases listeners and timers and resets counters. Idempotent.
func (p *Player) Stop() {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	p.teardown()
	p.resetCounters()
	p.setState(StateStopped)
}

// Close stops the player and shuts down notification delivery
func (p *Player) Close() {
	p.Stop()

	p.notifyMu.Lock()
	if !p.notifyClosed {
		p.notifyClosed = true
		close(p.notes)
	}
	p.notifyMu.Unlock()
	<-p.dispatchDone
}

// State returns the current player state
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the active session id, empty without a session
func (p *Player) SessionID() string {
	s := p.active.Load()
	if s == nil {
		return ""
	}
	return s.id
}

// QueueStats returns the last validated renderer queue statistics
func (p *Player) QueueStats() QueueStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStats
}

// Timers returns how many telemetry timers are active
func (p *Player) Timers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return 0
	}
	return len(p.sess.timers)
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Player) resetCounters() {
	p.activity.Store(0)
	p.lastRate.Store(0)
	p.mu.Lock()
	p.lastStats = QueueStats{}
	p.mu.Unlock()
}
