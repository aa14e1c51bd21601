// ABOUTME: mDNS discovery for remote audio sinks
// ABOUTME: Sinks advertise themselves, hosts browse for them
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD service type of an audio sink
	ServiceType = "_emuaudio-sink._tcp"

	// DefaultPath is where a sink serves its websocket endpoint
	DefaultPath = "/renderer"

	browseTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	Logger      *slog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	sinks  chan *SinkInfo
}

// SinkInfo describes a discovered sink
type SinkInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the websocket address of the sink
func (s *SinkInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)), s.Path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		logger: config.Logger.With(slog.String("component", "discovery")),
		ctx:    ctx,
		cancel: cancel,
		sinks:  make(chan *SinkInfo, 10),
	}
}

// Advertise announces this sink via mDNS until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("Advertising sink",
		slog.String("name", m.config.ServiceName),
		slog.Int("port", m.config.Port),
		slog.String("type", ServiceType),
	)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for sinks until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				sink := sinkFromEntry(entry)
				if sink == nil {
					continue
				}
				m.logger.Debug("Discovered sink", slog.String("name", sink.Name), slog.String("url", sink.URL()))

				select {
				case m.sinks <- sink:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = browseTimeout
		params.Entries = entries
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			m.logger.Warn("mDNS query failed", slog.Any("error", err))
		}
		close(entries)
		<-done
	}
}

// sinkFromEntry converts a service entry, ignoring entries without an IPv4 address
func sinkFromEntry(entry *mdns.ServiceEntry) *SinkInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	sink := &SinkInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: DefaultPath,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			sink.Path = path
		}
	}
	return sink
}

// Sinks returns the channel of discovered sinks
func (m *Manager) Sinks() <-chan *SinkInfo {
	return m.sinks
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
