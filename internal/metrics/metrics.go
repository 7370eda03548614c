// Package metrics exports telemetry counters and link states to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/telemetry"
	"github.com/luki/sensorlink/internal/transport"
)

const namespace = "sensorlink"

var states = []transport.State{transport.Unprobed, transport.Available, transport.Unavailable, transport.Degraded}

// Metrics is a telemetry.Observer backed by its own registry.
type Metrics struct {
	reg *prometheus.Registry

	ticks       prometheus.Counter
	delivered   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	dropped     prometheus.Counter
	temperature *prometheus.GaugeVec
	linkState   *prometheus.GaugeVec
	lastTick    prometheus.Gauge
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Telemetry ticks run.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payloads_delivered_total",
			Help: "Payloads handed to a channel without error.",
		}, []string{"channel"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_failures_total",
			Help: "Sends that failed and degraded their channel.",
		}, []string{"channel"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payloads_dropped_total",
			Help: "Ticks with no available channel.",
		}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "temperature_celsius",
			Help: "Last temperature read, by sensor. Absent until the sensor is resolved.",
		}, []string{"sensor"}),
		linkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channel_state",
			Help: "1 for the current state of each channel, 0 otherwise.",
		}, []string{"channel", "state"}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_tick_timestamp_seconds",
			Help: "Unix time of the last tick.",
		}),
	}
	m.reg.MustRegister(
		m.ticks, m.delivered, m.failed, m.dropped, m.temperature, m.linkState, m.lastTick,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe updates the collectors from s.
func (m *Metrics) Observe(_ context.Context, s telemetry.Sample) {
	m.ticks.Inc()
	m.lastTick.Set(float64(s.Time.UnixNano()) / 1e9)

	switch {
	case s.Channel == "":
		m.dropped.Inc()
	case s.Err != nil:
		m.failed.WithLabelValues(s.Channel).Inc()
	default:
		m.delivered.WithLabelValues(s.Channel).Inc()
	}

	if s.Reading.CPUValid {
		m.temperature.WithLabelValues("cpu").Set(float64(s.Reading.CPU))
	}
	if s.Reading.GPUValid {
		m.temperature.WithLabelValues("gpu").Set(float64(s.Reading.GPU))
	}

	for _, l := range s.Links {
		for _, st := range states {
			v := 0.0
			if l.State == st {
				v = 1
			}
			m.linkState.WithLabelValues(l.Name, st.String()).Set(v)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve exposes /metrics and /healthz on addr until ctx is done. It
// returns once the server has shut down.
func Serve(ctx context.Context, addr string, m *Metrics, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, m, logger)
}

// ServeListener is Serve over an existing listener, which it closes.
func ServeListener(ctx context.Context, ln net.Listener, m *Metrics, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("serving metrics", zap.Stringer("addr", ln.Addr()))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-served
	return err
}
