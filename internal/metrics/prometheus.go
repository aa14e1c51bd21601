// ABOUTME: Prometheus metrics fed by player notifications
// ABOUTME: Implements player.Delegate and serves /metrics
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/harperreed/emuaudio/pkg/player"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the audio pipeline
type Metrics struct {
	registry *prometheus.Registry

	Notifications *prometheus.CounterVec

	// Session metrics
	SessionsOpened prometheus.Counter
	Running        prometheus.Gauge
	BlockedTotal   prometheus.Counter

	// Telemetry metrics
	BytesPerSecond prometheus.Gauge
	ProbeRMS       prometheus.Gauge
	ProbeClipped   prometheus.Counter

	// Renderer queue metrics
	QueueBufferedMs prometheus.Gauge
	QueueDropped    prometheus.Gauge
	QueueMode       *prometheus.GaugeVec
}

// NewMetrics creates the metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emuaudio_notifications_total",
			Help: "Player notifications received, by type",
		}, []string{"type"}),

		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "emuaudio_sessions_opened_total",
			Help: "Audio sessions opened",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emuaudio_running",
			Help: "1 while the output device is confirmed running",
		}),
		BlockedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "emuaudio_blocked_total",
			Help: "Times playback was blocked waiting for user interaction",
		}),

		BytesPerSecond: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emuaudio_enqueue_bytes_per_second",
			Help: "PCM bytes handed to the transport per second",
		}),
		ProbeRMS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emuaudio_probe_rms",
			Help: "RMS of the most recent rendered samples",
		}),
		ProbeClipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "emuaudio_probe_clipped_total",
			Help: "Probe samples that contained clipping",
		}),

		QueueBufferedMs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emuaudio_queue_buffered_ms",
			Help: "Milliseconds of audio buffered ahead of the output",
		}),
		QueueDropped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emuaudio_queue_dropped_chunks",
			Help: "Chunks dropped by the renderer's jitter queue in this session",
		}),
		QueueMode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "emuaudio_transport_mode",
			Help: "1 for the transport mode in use",
		}, []string{"mode"}),
	}
}

// Notify records a player notification
func (m *Metrics) Notify(n player.Notification) {
	m.Notifications.WithLabelValues(string(n.Kind)).Inc()

	switch n.Kind {
	case player.KindOpen:
		m.SessionsOpened.Inc()
		m.Running.Set(0)
		m.QueueBufferedMs.Set(0)
		m.QueueDropped.Set(0)
	case player.KindRunning:
		m.Running.Set(1)
	case player.KindBlocked:
		m.Running.Set(0)
		m.BlockedTotal.Inc()
	case player.KindActivity:
		if a, ok := n.Payload.(player.Activity); ok {
			m.BytesPerSecond.Set(float64(a.BytesPerSecond))
		}
	case player.KindProbe:
		if p, ok := n.Payload.(player.ProbeSample); ok {
			m.ProbeRMS.Set(p.RMS)
			if p.Clipped {
				m.ProbeClipped.Inc()
			}
		}
	case player.KindQueueStats:
		if q, ok := n.Payload.(player.QueueStats); ok {
			m.QueueBufferedMs.Set(q.BufferedMs)
			m.QueueDropped.Set(float64(q.DroppedChunks))
			m.QueueMode.Reset()
			m.QueueMode.WithLabelValues(string(q.Mode)).Set(1)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
