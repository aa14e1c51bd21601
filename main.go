// ABOUTME: Entry point for the emulator audio host
// ABOUTME: Wires the emulated source, player, output backend, metrics and monitor TUI
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/emuaudio/internal/client"
	"github.com/harperreed/emuaudio/internal/config"
	"github.com/harperreed/emuaudio/internal/discovery"
	"github.com/harperreed/emuaudio/internal/emulator"
	"github.com/harperreed/emuaudio/internal/metrics"
	"github.com/harperreed/emuaudio/internal/ui"
	"github.com/harperreed/emuaudio/internal/version"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/harperreed/emuaudio/pkg/audio/source"
	"github.com/harperreed/emuaudio/pkg/player"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const discoverTimeout = 10 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = version.Product
	app.Usage = "play an emulated machine's sound through a local or remote output"
	app.Version = version.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Path to a YAML config file",
		},
		cli.StringFlag{
			Name:  "source",
			Usage: "Audio file or HTTP MP3 stream standing in for the emulator (default: test tone)",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Output backend: oto, malgo, portaudio, headless or remote",
		},
		cli.StringFlag{
			Name:  "sink",
			Usage: "Websocket URL of a remote sink (implies --backend remote)",
		},
		cli.BoolFlag{
			Name:  "discover",
			Usage: "Find a remote sink via mDNS (implies --backend remote)",
		},
		cli.BoolFlag{
			Name:  "force-message",
			Usage: "Use the message transport even when shared memory is available",
		},
		cli.BoolFlag{
			Name:  "autoplay",
			Usage: "Do not wait for a keypress before starting audio",
		},
		cli.Float64Flag{
			Name:  "stall-every",
			Usage: "Simulate an emulator freeze every N seconds (0 = disabled)",
		},
		cli.StringFlag{
			Name:  "metrics",
			Usage: "Serve Prometheus metrics on this address",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: "Log file path (the TUI always logs to a file)",
			Value: "emuaudio.log",
		},
		cli.BoolFlag{
			Name:  "no-tui",
			Usage: "Disable the TUI and stream logs instead",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Log buffer fill levels",
		},
	}
	app.Action = runHost

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running host", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("source") {
		cfg.Emulator.Source = c.String("source")
	}
	if c.IsSet("backend") {
		cfg.Output.Backend = c.String("backend")
	}
	if c.IsSet("sink") {
		cfg.Output.Backend = "remote"
		cfg.Output.SinkURL = c.String("sink")
	}
	if c.Bool("discover") {
		cfg.Output.Backend = "remote"
		cfg.Output.Discover = true
	}
	if c.Bool("force-message") {
		cfg.Player.ForceMessage = true
	}
	if c.Bool("autoplay") {
		cfg.Output.RequireInteraction = false
	}
	if c.IsSet("stall-every") {
		cfg.Emulator.StallEvery = c.Float64("stall-every")
	}
	if c.IsSet("metrics") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = c.String("metrics")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.Bool("debug") {
		cfg.Player.Debug = true
	}
	if c.Bool("no-tui") {
		cfg.UI.Enabled = false
	}
	if cfg.UI.Enabled && (cfg.Logging.Output == "stderr" || cfg.Logging.Output == "stdout") {
		// The TUI owns the terminal
		cfg.Logging.Output = c.String("log-file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runHost(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting emulator audio host",
		slog.String("version", version.Version),
		slog.String("backend", cfg.Output.Backend),
	)

	backend, err := selectBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	activation := output.NewActivation(!cfg.Output.RequireInteraction)
	p := player.New(player.Config{
		Backend:          backend,
		Activation:       activation,
		ForceMessage:     cfg.Player.ForceMessage,
		SettleDelay:      cfg.Player.GetSettleDelay(),
		ActivityInterval: cfg.Player.GetActivityInterval(),
		ProbeInterval:    cfg.Player.GetProbeInterval(),
		DebugInterval:    cfg.Player.GetDebugInterval(),
		RingCapacity:     cfg.Player.RingCapacity,
		MaxBufferedMs:    cfg.Player.MaxBufferedMs,
		TapSize:          cfg.Player.TapSize,
		Logger:           logger,
	})
	defer p.Close()

	src, err := source.Open(cfg.Emulator.Source, logger)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	reader, err := source.NewReader(src, cfg.Emulator.Format())
	if err != nil {
		return err
	}

	var monitor *ui.Monitor
	controls := &hostControls{activation: activation, player: p}
	if cfg.UI.Enabled {
		monitor = ui.NewMonitor(controls)
		controls.monitor = monitor
		monitor.Send(ui.StatusMsg{Backend: backend.Name(), Source: src.Title()})
	}

	var delegates fanout
	if monitor != nil {
		delegates = append(delegates, monitor)
	} else {
		delegates = append(delegates, logDelegate{logger: logger})
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
		delegates = append(delegates, m)
	}
	p.SetDelegate(delegates)

	producer, err := emulator.New(reader, p, emulator.Config{
		Format:        cfg.Emulator.Format(),
		Chunk:         cfg.Emulator.GetChunkDuration(),
		HighWater:     time.Duration(cfg.Emulator.HighWaterMs) * time.Millisecond,
		StallEvery:    cfg.Emulator.GetStallEvery(),
		StallDuration: cfg.Emulator.GetStallDuration(),
		OnFlush:       controls.flushed,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	if err := p.Init(ctx, cfg.Emulator.Format(), cfg.Player.Debug); err != nil {
		return fmt.Errorf("failed to start audio: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return producer.Run(gctx)
	})

	if m != nil {
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Address, logger)
		})
	}

	if monitor != nil {
		g.Go(func() error {
			defer cancel()
			return monitor.Run()
		})
		g.Go(func() error {
			<-gctx.Done()
			monitor.Quit()
			return nil
		})
	} else {
		if cfg.Output.RequireInteraction {
			fmt.Fprintln(os.Stderr, "Press Enter to enable sound")
		}
		go readInteractions(os.Stdin, activation)
	}

	err = g.Wait()
	p.Stop()

	stats := producer.Stats()
	logger.Info("Host stopped",
		slog.Int64("chunks", stats.Chunks),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("stalls", stats.Stalls),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// selectBackend resolves the configured output, browsing mDNS for a sink if asked to
func selectBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (output.Backend, error) {
	if cfg.Output.Backend != "remote" {
		return output.ByName(cfg.Output.Backend)
	}

	url := cfg.Output.SinkURL
	if url == "" {
		logger.Info("Browsing for a sink")
		disc := discovery.NewManager(discovery.Config{Logger: logger})
		disc.Browse()
		defer disc.Stop()

		select {
		case sink := <-disc.Sinks():
			url = sink.URL()
			logger.Info("Discovered sink", slog.String("name", sink.Name), slog.String("url", url))
		case <-time.After(discoverTimeout):
			return nil, fmt.Errorf("no sink found after %s", discoverTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return client.NewBackend(client.Config{URL: url, Name: version.String()}), nil
}

// readInteractions treats each line on r as a user gesture
func readInteractions(r io.Reader, activation *output.Activation) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		activation.Interact()
	}
}

// hostControls carries monitor actions to the player
type hostControls struct {
	activation *output.Activation
	player     *player.Player
	monitor    *ui.Monitor
}

func (h *hostControls) Interact() {
	h.activation.Interact()
}

func (h *hostControls) Flush() {
	h.flushed(player.FlushManual, h.player.Flush(player.FlushManual))
}

func (h *hostControls) flushed(reason player.FlushReason, droppedMs float64) {
	if h.monitor != nil {
		h.monitor.Send(ui.FlushedMsg{Reason: string(reason), DroppedMs: droppedMs})
	}
}

// fanout delivers each notification to several delegates
type fanout []player.Delegate

func (f fanout) Notify(n player.Notification) {
	for _, d := range f {
		d.Notify(n)
	}
}

// logDelegate logs state changes when no TUI is running
type logDelegate struct {
	logger *slog.Logger
}

func (l logDelegate) Notify(n player.Notification) {
	switch n.Kind {
	case player.KindBlocked:
		l.logger.Warn("Audio blocked until user interaction", slog.String("session", n.SessionID))
	case player.KindRunning:
		l.logger.Info("Audio running", slog.String("session", n.SessionID))
	case player.KindOpen, player.KindQueueStats:
		l.logger.Info("Audio notification", slog.String("type", string(n.Kind)), slog.Any("payload", n.Payload))
	default:
		l.logger.Debug("Audio notification", slog.String("type", string(n.Kind)), slog.Any("payload", n.Payload))
	}
}
