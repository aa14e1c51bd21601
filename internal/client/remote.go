// ABOUTME: Remote output backend that renders on a websocket sink
// ABOUTME: Proxies device state, PCM and queue statistics over one connection
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/emuaudio/internal/wire"
	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/harperreed/emuaudio/pkg/probe"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/renderer"
	"github.com/harperreed/emuaudio/pkg/transport"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	statsBuffer             = 16
)

// Config holds remote backend configuration
type Config struct {
	// URL of the sink's websocket endpoint, e.g. ws://host:8928/renderer
	URL  string
	Name string

	HandshakeTimeout time.Duration
	SendQueue        int
}

// Backend opens devices on a remote sink
type Backend struct {
	config Config
	dialer *websocket.Dialer
}

// NewBackend creates a remote backend
func NewBackend(config Config) *Backend {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.Name == "" {
		config.Name = "emuaudio"
	}
	return &Backend{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
	}
}

func (b *Backend) Name() string { return "remote" }

// Open connects to the sink and performs the hello exchange
func (b *Backend) Open(format audio.Format, opts output.Options) (output.Device, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("backend", b.Name()), slog.String("sink", b.config.URL))

	ws, _, err := b.dialer.Dial(b.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	conn := wire.New(ws, logger, b.config.SendQueue)

	sessionID := uuid.New().String()
	hello := protocol.HostHello{SessionID: sessionID, Name: b.config.Name, Format: format}
	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeHostHello, Payload: hello}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send host/hello: %w", err)
	}

	reply, err := conn.ReadHandshake(b.config.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read sink/hello: %w", err)
	}
	sinkHello, ok := reply.Payload.(protocol.SinkHello)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("expected %s, got %s", protocol.TypeSinkHello, reply.Type)
	}

	logger.Info("Connected to sink",
		slog.String("sink_name", sinkHello.Name),
		slog.String("sink_backend", sinkHello.Backend),
		slog.String("state", sinkHello.State),
	)

	state := output.State(sinkHello.State)
	if state == "" {
		state = output.StateSuspended
	}

	d := &remoteDevice{
		conn:       conn,
		format:     format,
		activation: opts.Activation,
		logger:     logger,
		sink:       sinkHello,
		state:      state,
		listeners:  make(map[uint64]func(output.State)),
		stats:      make(chan protocol.QueueStats, statsBuffer),
		readDone:   make(chan struct{}),
	}
	go conn.Run()
	go d.readLoop()
	return d, nil
}

// remoteDevice mirrors the state of the sink's device
type remoteDevice struct {
	conn       *wire.Conn
	format     audio.Format
	activation *output.Activation
	logger     *slog.Logger
	sink       protocol.SinkHello
	stats      chan protocol.QueueStats
	readDone   chan struct{}

	mu        sync.Mutex
	state     output.State
	listeners map[uint64]func(output.State)
	nextID    uint64
	module    *remoteModule
}

func (d *remoteDevice) State() output.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SharedMemory is false: the renderer lives in another process
func (d *remoteDevice) SharedMemory() bool { return false }

// Resume forwards the request once the local user has interacted. The state
// change arrives asynchronously from the sink.
func (d *remoteDevice) Resume() error {
	switch d.State() {
	case output.StateClosed:
		return output.ErrClosed
	case output.StateRunning:
		return nil
	}
	if !d.activation.Granted() {
		return output.ErrNotActivated
	}
	return d.conn.Send(protocol.Message{Type: protocol.TypeResume, Payload: protocol.Resume{}})
}

func (d *remoteDevice) Suspend() error {
	if d.State() != output.StateRunning {
		return nil
	}
	return d.conn.Send(protocol.Message{Type: protocol.TypeSuspend, Payload: protocol.Suspend{}})
}

func (d *remoteDevice) OnStateChange(fn func(output.State)) (remove func()) {
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

// Load accepts only a message-mode renderer; the sink builds the real one
func (d *remoteDevice) Load(cfg renderer.Config) (output.Module, error) {
	if cfg.Mode != transport.ModeMessage {
		return nil, output.ErrSharedMemory
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == output.StateClosed {
		return nil, output.ErrClosed
	}
	if d.module != nil {
		return nil, errors.New("remote device already has a renderer")
	}
	d.module = &remoteModule{
		conn:   d.conn,
		stats:  d.stats,
		tap:    probe.NewTap(cfg.TapSize),
		format: cfg.Format,
		logger: d.logger,
	}
	if err := d.conn.Send(protocol.Message{Type: protocol.TypeFormat, Payload: cfg.Format}); err != nil {
		d.logger.Warn("Failed to send format to sink", slog.Any("error", err))
	}
	return d.module, nil
}

func (d *remoteDevice) Close() error {
	err := d.conn.Close()
	<-d.readDone
	d.setState(output.StateClosed)
	return err
}

func (d *remoteDevice) setState(s output.State) {
	d.mu.Lock()
	if d.state == s || d.state == output.StateClosed {
		d.mu.Unlock()
		return
	}
	d.state = s
	fns := make([]func(output.State), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	if s == output.StateClosed {
		d.listeners = make(map[uint64]func(output.State))
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// readLoop routes sink messages until the connection drops
func (d *remoteDevice) readLoop() {
	defer close(d.readDone)
	for {
		msg, err := d.conn.Read()
		if errors.Is(err, protocol.ErrMalformed) {
			d.logger.Debug("Ignoring malformed sink message", slog.Any("error", err))
			continue
		}
		if err != nil {
			select {
			case <-d.conn.Done():
			default:
				d.logger.Warn("Sink connection lost", slog.Any("error", err))
				d.conn.Close()
			}
			d.setState(output.StateClosed)
			return
		}

		switch payload := msg.Payload.(type) {
		case protocol.DeviceState:
			d.setState(output.State(payload.State))
		case protocol.QueueStats:
			select {
			case d.stats <- payload:
			default:
			}
		default:
			d.logger.Debug("Unexpected sink message", slog.String("type", msg.Type))
		}
	}
}

// remoteModule forwards renderer messages to the sink and taps outgoing PCM locally
type remoteModule struct {
	conn   *wire.Conn
	stats  chan protocol.QueueStats
	tap    *probe.Tap
	logger *slog.Logger

	mu     sync.Mutex
	format audio.Format
}

func (m *remoteModule) Post(msg protocol.Message) {
	switch payload := msg.Payload.(type) {
	case protocol.PCMChunk:
		m.mu.Lock()
		f := m.format
		m.mu.Unlock()
		m.tap.Write(payload.Data, f.SampleSizeBits, f.Channels)
	case audio.Format:
		m.mu.Lock()
		m.format = payload
		m.mu.Unlock()
	case protocol.Reset:
		m.tap.Clear()
	}

	if err := m.conn.Send(msg); err != nil && !errors.Is(err, wire.ErrClosed) {
		m.logger.Debug("Dropped message for sink", slog.String("type", msg.Type), slog.Any("error", err))
	}
}

func (m *remoteModule) Stats() <-chan protocol.QueueStats { return m.stats }

func (m *remoteModule) Tap() *probe.Tap { return m.tap }
