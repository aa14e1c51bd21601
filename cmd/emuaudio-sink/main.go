// ABOUTME: Entry point for the remote audio sink
// ABOUTME: Plays audio streamed by an emulator host and advertises itself via mDNS
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/emuaudio/internal/config"
	"github.com/harperreed/emuaudio/internal/server"
	"github.com/harperreed/emuaudio/internal/version"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/urfave/cli"
)

const statusEvery = 30 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = version.Product + "-sink"
	app.Usage = "render audio streamed by an emuaudio host"
	app.Version = version.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Path to a YAML config file",
		},
		cli.IntFlag{
			Name:  "port",
			Usage: "WebSocket port",
		},
		cli.StringFlag{
			Name:  "name",
			Usage: "Sink name advertised via mDNS",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Output backend: oto, malgo, portaudio or headless",
		},
		cli.BoolFlag{
			Name:  "no-mdns",
			Usage: "Disable mDNS advertisement",
		},
		cli.BoolFlag{
			Name:  "require-interaction",
			Usage: "Keep audio suspended until Enter is pressed",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
	}
	app.Action = runSink

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running sink", "error", err)
		os.Exit(1)
	}
}

func runSink(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Sink.Port = c.Int("port")
	}
	if c.IsSet("name") {
		cfg.Sink.Name = c.String("name")
	} else if hostname, err := os.Hostname(); err == nil && cfg.Sink.Name == config.Default().Sink.Name {
		cfg.Sink.Name = fmt.Sprintf("%s-%s", hostname, cfg.Sink.Name)
	}
	if c.IsSet("backend") {
		cfg.Sink.Backend = c.String("backend")
	}
	if c.Bool("no-mdns") {
		cfg.Sink.MDNS = false
	}
	if c.Bool("require-interaction") {
		cfg.Sink.RequireInteraction = true
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	backend, err := output.ByName(cfg.Sink.Backend)
	if err != nil {
		return err
	}

	activation := output.NewActivation(!cfg.Sink.RequireInteraction)
	if cfg.Sink.RequireInteraction {
		fmt.Fprintln(os.Stderr, "Press Enter to enable sound")
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				activation.Interact()
			}
		}()
	}

	sink := server.New(server.Config{
		Port:          cfg.Sink.Port,
		Name:          cfg.Sink.Name,
		Path:          cfg.Sink.Path,
		Backend:       backend,
		Activation:    activation,
		MaxBufferedMs: cfg.Sink.MaxBufferedMs,
		EnableMDNS:    cfg.Sink.MDNS,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logStatus(ctx, sink, logger)
	return sink.Run(ctx)
}

// logStatus periodically reports the connected host
func logStatus(ctx context.Context, sink *server.Sink, logger *slog.Logger) {
	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st := sink.Status()
			logger.Info("Sink status",
				slog.String("host", st.Host),
				slog.String("state", string(st.State)),
				slog.Int("connections", st.Connections),
			)
		case <-ctx.Done():
			return
		}
	}
}
