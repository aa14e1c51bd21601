// ABOUTME: YAML configuration for the emulator host and the remote sink
// ABOUTME: Defaults, per-section validation and duration helpers
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of both binaries
type Config struct {
	Player   PlayerConfig   `yaml:"player"`
	Output   OutputConfig   `yaml:"output"`
	Emulator EmulatorConfig `yaml:"emulator"`
	Sink     SinkConfig     `yaml:"sink"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	UI       UIConfig       `yaml:"ui"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PlayerConfig tunes the audio player session
type PlayerConfig struct {
	SettleDelayMs      int  `yaml:"settle_delay_ms"`
	ActivityIntervalMs int  `yaml:"activity_interval_ms"`
	ProbeIntervalMs    int  `yaml:"probe_interval_ms"`
	DebugIntervalMs    int  `yaml:"debug_interval_ms"`
	ForceMessage       bool `yaml:"force_message"`
	RingCapacity       int  `yaml:"ring_capacity"` // bytes, 0 uses the default
	MaxBufferedMs      int  `yaml:"max_buffered_ms"`
	TapSize            int  `yaml:"tap_size"`
	Debug              bool `yaml:"debug"`
}

// OutputConfig picks where audio is played
type OutputConfig struct {
	Backend string `yaml:"backend"`

	// SinkURL is the websocket endpoint of a remote sink
	SinkURL string `yaml:"sink_url"`

	// Discover browses mDNS for a sink when SinkURL is empty
	Discover bool `yaml:"discover"`

	// RequireInteraction starts with playback blocked until the user interacts
	RequireInteraction bool `yaml:"require_interaction"`
}

// EmulatorConfig describes the emulated machine's sound output
type EmulatorConfig struct {
	Source         string  `yaml:"source"` // file path or URL, empty plays a test tone
	SampleRate     int     `yaml:"sample_rate"`
	SampleSizeBits int     `yaml:"sample_size_bits"`
	Channels       int     `yaml:"channels"`
	ChunkMs        int     `yaml:"chunk_ms"`
	HighWaterMs    int     `yaml:"high_water_ms"`
	StallEvery     float64 `yaml:"stall_every"` // seconds between simulated freezes, 0 disables
	StallMs        int     `yaml:"stall_ms"`
}

// SinkConfig configures the remote renderer
type SinkConfig struct {
	Port               int    `yaml:"port"`
	Name               string `yaml:"name"`
	Path               string `yaml:"path"`
	Backend            string `yaml:"backend"`
	MDNS               bool   `yaml:"mdns"`
	MaxBufferedMs      int    `yaml:"max_buffered_ms"`
	RequireInteraction bool   `yaml:"require_interaction"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// UIConfig controls the terminal monitor
type UIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// Default returns a configuration that runs without a config file
func Default() *Config {
	return &Config{
		Player: PlayerConfig{
			SettleDelayMs:      250,
			ActivityIntervalMs: 1000,
			ProbeIntervalMs:    1000,
			DebugIntervalMs:    100,
			MaxBufferedMs:      500,
			TapSize:            2048,
		},
		Output: OutputConfig{
			Backend:            "oto",
			RequireInteraction: true,
		},
		Emulator: EmulatorConfig{
			SampleRate:     22050,
			SampleSizeBits: 16,
			Channels:       2,
			ChunkMs:        20,
			HighWaterMs:    200,
			StallMs:        300,
		},
		Sink: SinkConfig{
			Port:          8928,
			Name:          "emuaudio-sink",
			Path:          "/renderer",
			Backend:       "oto",
			MDNS:          true,
			MaxBufferedMs: 500,
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
		UI: UIConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Player.Validate(); err != nil {
		return fmt.Errorf("player config: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}
	if err := c.Emulator.Validate(); err != nil {
		return fmt.Errorf("emulator config: %w", err)
	}
	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates player configuration. A negative settle delay reports
// Running as soon as the device starts.
func (p *PlayerConfig) Validate() error {
	if p.ActivityIntervalMs <= 0 {
		return fmt.Errorf("activity_interval_ms must be positive, got %d", p.ActivityIntervalMs)
	}
	if p.ProbeIntervalMs <= 0 {
		return fmt.Errorf("probe_interval_ms must be positive, got %d", p.ProbeIntervalMs)
	}
	if p.DebugIntervalMs <= 0 {
		return fmt.Errorf("debug_interval_ms must be positive, got %d", p.DebugIntervalMs)
	}
	if p.RingCapacity < 0 {
		return fmt.Errorf("ring_capacity cannot be negative, got %d", p.RingCapacity)
	}
	if p.MaxBufferedMs <= 0 {
		return fmt.Errorf("max_buffered_ms must be positive, got %d", p.MaxBufferedMs)
	}
	if p.TapSize <= 0 {
		return fmt.Errorf("tap_size must be positive, got %d", p.TapSize)
	}
	return nil
}

// Validate validates output configuration
func (o *OutputConfig) Validate() error {
	if o.Backend == "remote" {
		if o.SinkURL == "" && !o.Discover {
			return fmt.Errorf("remote backend needs sink_url or discover")
		}
		return nil
	}
	if _, err := output.ByName(o.Backend); err != nil {
		return err
	}
	return nil
}

// Validate validates the emulated sound format and pacing
func (e *EmulatorConfig) Validate() error {
	if err := e.Format().Validate(); err != nil {
		return err
	}
	switch e.SampleSizeBits {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("sample_size_bits must be 8, 16, 24 or 32, got %d", e.SampleSizeBits)
	}
	if e.ChunkMs <= 0 {
		return fmt.Errorf("chunk_ms must be positive, got %d", e.ChunkMs)
	}
	if e.HighWaterMs < e.ChunkMs {
		return fmt.Errorf("high_water_ms (%d) must be at least chunk_ms (%d)", e.HighWaterMs, e.ChunkMs)
	}
	if e.StallEvery < 0 {
		return fmt.Errorf("stall_every cannot be negative, got %f", e.StallEvery)
	}
	if e.StallEvery > 0 && e.StallMs <= 0 {
		return fmt.Errorf("stall_ms must be positive when stall_every is set, got %d", e.StallMs)
	}
	return nil
}

// Validate validates sink configuration
func (s *SinkConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Path == "" || s.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got '%s'", s.Path)
	}
	if s.Backend == "remote" {
		return fmt.Errorf("sink backend cannot be remote")
	}
	if _, err := output.ByName(s.Backend); err != nil {
		return err
	}
	if s.MaxBufferedMs <= 0 {
		return fmt.Errorf("max_buffered_ms must be positive, got %d", s.MaxBufferedMs)
	}
	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}

// GetSettleDelay returns the settle delay; negative means none
func (p *PlayerConfig) GetSettleDelay() time.Duration {
	if p.SettleDelayMs < 0 {
		return -1
	}
	return time.Duration(p.SettleDelayMs) * time.Millisecond
}

// GetActivityInterval returns the activity timer period
func (p *PlayerConfig) GetActivityInterval() time.Duration {
	return time.Duration(p.ActivityIntervalMs) * time.Millisecond
}

// GetProbeInterval returns the probe timer period
func (p *PlayerConfig) GetProbeInterval() time.Duration {
	return time.Duration(p.ProbeIntervalMs) * time.Millisecond
}

// GetDebugInterval returns the buffer fill log period
func (p *PlayerConfig) GetDebugInterval() time.Duration {
	return time.Duration(p.DebugIntervalMs) * time.Millisecond
}

// Format returns the emulated machine's PCM format
func (e *EmulatorConfig) Format() audio.Format {
	return audio.Format{SampleRate: e.SampleRate, SampleSizeBits: e.SampleSizeBits, Channels: e.Channels}
}

// GetChunkDuration returns how much audio each producer tick hands over
func (e *EmulatorConfig) GetChunkDuration() time.Duration {
	return time.Duration(e.ChunkMs) * time.Millisecond
}

// GetStallEvery returns the period between simulated freezes
func (e *EmulatorConfig) GetStallEvery() time.Duration {
	return time.Duration(e.StallEvery * float64(time.Second))
}

// GetStallDuration returns how long a simulated freeze lasts
func (e *EmulatorConfig) GetStallDuration() time.Duration {
	return time.Duration(e.StallMs) * time.Millisecond
}
