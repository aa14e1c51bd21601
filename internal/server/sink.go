// ABOUTME: Remote audio sink serving a renderer over websocket
// ABOUTME: Opens a local output device per host and reports state and queue stats back
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/emuaudio/internal/discovery"
	"github.com/harperreed/emuaudio/internal/wire"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/renderer"
	"github.com/harperreed/emuaudio/pkg/transport"
)

const handshakeTimeout = 5 * time.Second

// Config holds sink configuration
type Config struct {
	Port int
	Name string
	Path string

	// Backend plays the audio received from the host
	Backend output.Backend

	// Activation gates the local device; nil lets it start immediately
	Activation *output.Activation

	// MaxBufferedMs caps the jitter queue when the host does not ask for one
	MaxBufferedMs int

	EnableMDNS bool
	Logger     *slog.Logger
}

// Status is a snapshot of the sink for logs and monitors
type Status struct {
	Host        string
	State       output.State
	Connections int
}

// Sink renders audio for one host at a time. A new host replaces the old one.
type Sink struct {
	config   Config
	sinkID   string
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu          sync.Mutex
	current     *hostConn
	connections int

	wg sync.WaitGroup
}

// hostConn is one connected producer host
type hostConn struct {
	name string
	conn *wire.Conn
	dev  output.Device
}

// New creates a sink
func New(config Config) *Sink {
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}
	if config.Name == "" {
		config.Name = "emuaudio-sink"
	}
	if config.Backend == nil {
		config.Backend = output.NewOto()
	}
	if config.MaxBufferedMs <= 0 {
		config.MaxBufferedMs = renderer.DefaultMaxBufferedMs
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Sink{
		config: config,
		sinkID: uuid.New().String(),
		logger: config.Logger.With(slog.String("component", "sink")),
		mux:    http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Sinks serve trusted local networks; browsers are logged but allowed
			if origin := r.Header.Get("Origin"); origin != "" {
				s.logger.Debug("Accepting websocket from origin", slog.String("origin", origin))
			}
			return true
		},
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler exposes the sink's HTTP routes
func (s *Sink) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled
func (s *Sink) Run(ctx context.Context) error {
	s.logger.Info("Sink starting",
		slog.String("name", s.config.Name),
		slog.String("id", s.sinkID),
		slog.String("backend", s.config.Backend.Name()),
	)

	if s.config.EnableMDNS {
		mdns := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
			Logger:      s.config.Logger,
		})
		if err := mdns.Advertise(); err != nil {
			s.logger.Warn("Failed to start mDNS advertisement", slog.Any("error", err))
		}
		defer mdns.Stop()
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("WebSocket server listening", slog.String("addr", httpServer.Addr), slog.String("path", s.config.Path))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Sink shutting down")
	case serverErr = <-errChan:
	}

	s.disconnectCurrent()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Status returns a snapshot of the sink
func (s *Sink) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: output.StateClosed, Connections: s.connections}
	if s.current != nil {
		st.Host = s.current.name
		st.State = s.current.dev.State()
	}
	return st
}

func (s *Sink) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", slog.Any("error", err))
		return
	}
	s.logger.Info("New host connection", slog.String("remote", r.RemoteAddr))

	s.wg.Add(1)
	defer s.wg.Done()
	s.serve(wire.New(ws, s.config.Logger, 0))
}

// serve runs one host session from handshake to disconnect
func (s *Sink) serve(conn *wire.Conn) {
	defer conn.Close()

	msg, err := conn.ReadHandshake(handshakeTimeout)
	if err != nil {
		s.logger.Warn("Error reading host/hello", slog.Any("error", err))
		return
	}
	hello, ok := msg.Payload.(protocol.HostHello)
	if !ok {
		s.logger.Warn("Expected host/hello", slog.String("type", msg.Type))
		return
	}
	if err := hello.Format.Validate(); err != nil {
		s.logger.Warn("Host sent invalid format", slog.Any("error", err))
		return
	}
	logger := s.logger.With(slog.String("host", hello.Name), slog.String("session", hello.SessionID))

	dev, err := s.config.Backend.Open(hello.Format, output.Options{
		Activation: s.config.Activation,
		Logger:     s.config.Logger,
	})
	if err != nil {
		logger.Warn("Failed to open output device", slog.Any("error", err))
		return
	}
	defer dev.Close()

	maxBuffered := hello.MaxBufferedMs
	if maxBuffered <= 0 {
		maxBuffered = s.config.MaxBufferedMs
	}
	module, err := dev.Load(renderer.Config{
		Mode:          transport.ModeMessage,
		Format:        hello.Format,
		MaxBufferedMs: maxBuffered,
		Logger:        s.config.Logger,
	})
	if err != nil {
		logger.Warn("Failed to load renderer", slog.Any("error", err))
		return
	}

	host := &hostConn{name: hello.Name, conn: conn, dev: dev}
	s.replaceCurrent(host)
	defer s.clearCurrent(host)

	remove := dev.OnStateChange(func(st output.State) {
		if err := conn.Send(protocol.Message{Type: protocol.TypeDeviceState, Payload: protocol.DeviceState{State: string(st)}}); err != nil {
			logger.Debug("Failed to report device state", slog.Any("error", err))
		}
	})
	defer remove()

	if s.config.Activation.Granted() {
		if err := dev.Resume(); err != nil {
			logger.Debug("Autostart failed", slog.Any("error", err))
		}
	}

	reply := protocol.SinkHello{
		SinkID:  s.sinkID,
		Name:    s.config.Name,
		Backend: s.config.Backend.Name(),
		State:   string(dev.State()),
	}
	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeSinkHello, Payload: reply}); err != nil {
		logger.Warn("Error sending sink/hello", slog.Any("error", err))
		return
	}
	logger.Info("Host session started", slog.String("format", hello.Format.String()), slog.String("state", reply.State))

	var forward sync.WaitGroup
	forward.Add(2)
	go func() {
		defer forward.Done()
		conn.Run()
	}()
	go func() {
		defer forward.Done()
		s.forwardStats(conn, module)
	}()

	s.readHost(conn, dev, module, logger)
	conn.Close()
	forward.Wait()
	logger.Info("Host disconnected", slog.Uint64("dropped_messages", conn.Dropped()))
}

// readHost routes host messages to the renderer and device until the connection ends
func (s *Sink) readHost(conn *wire.Conn, dev output.Device, module output.Module, logger *slog.Logger) {
	for {
		msg, err := conn.Read()
		if errors.Is(err, protocol.ErrMalformed) {
			logger.Debug("Ignoring malformed host message", slog.Any("error", err))
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket error", slog.Any("error", err))
			}
			return
		}

		switch msg.Type {
		case protocol.TypePCM, protocol.TypeFormat, protocol.TypeReset:
			module.Post(msg)
		case protocol.TypeResume:
			if err := dev.Resume(); err != nil {
				logger.Debug("Resume refused", slog.Any("error", err))
				conn.Send(protocol.Message{Type: protocol.TypeDeviceState, Payload: protocol.DeviceState{State: string(dev.State())}})
			}
		case protocol.TypeSuspend:
			if err := dev.Suspend(); err != nil {
				logger.Warn("Suspend failed", slog.Any("error", err))
			}
		default:
			logger.Debug("Unexpected host message", slog.String("type", msg.Type))
		}
	}
}

// forwardStats relays renderer queue statistics to the host
func (s *Sink) forwardStats(conn *wire.Conn, module output.Module) {
	stats := module.Stats()
	for {
		select {
		case <-conn.Done():
			return
		case qs := <-stats:
			// Stats are superseded by the next update, so a full queue just drops this one
			conn.Send(protocol.Message{Type: protocol.TypeQueueStats, Payload: qs})
		}
	}
}

func (s *Sink) replaceCurrent(h *hostConn) {
	s.mu.Lock()
	prev := s.current
	s.current = h
	s.connections++
	s.mu.Unlock()

	if prev != nil {
		s.logger.Info("Replacing connected host", slog.String("previous", prev.name), slog.String("next", h.name))
		prev.conn.Close()
	}
}

func (s *Sink) clearCurrent(h *hostConn) {
	s.mu.Lock()
	if s.current == h {
		s.current = nil
	}
	s.mu.Unlock()
}

func (s *Sink) disconnectCurrent() {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()
	if h != nil {
		h.conn.Close()
	}
}
