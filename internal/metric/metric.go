// Package metric exposes binding and render counters on a private Prometheus registry.
package metric

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chipdeck/internal/binding"
	"chipdeck/internal/dashboard"
)

const namespace = "chipdeck"

const (
	outcomeOK     = "ok"
	outcomeClosed = "already_closed"
	outcomeError  = "error"
)

// Metrics implements binding.Observer and dashboard.Sink.
type Metrics struct {
	registry *prometheus.Registry

	connects      *prometheus.CounterVec
	disconnects   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	activeHandles prometheus.Gauge
	renders       *prometheus.CounterVec
	stateEvents   prometheus.Counter
	connected     prometheus.Gauge
}

func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "connects_total",
			Help:      "Settled live binding subscriptions by outcome",
		}, []string{"key", "outcome"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "disconnects_total",
			Help:      "Settled live binding teardowns by outcome",
		}, []string{"key", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "deliveries_total",
			Help:      "Results accepted from live bindings",
		}, []string{"key"}),
		activeHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "active_handles",
			Help:      "Established live bindings",
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Published widget renders by widget type",
		}, []string{"type"}),
		stateEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hass",
			Name:      "state_events_total",
			Help:      "state_changed events received from Home Assistant",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hass",
			Name:      "connected",
			Help:      "1 while the Home Assistant connection is authenticated",
		}),
	}
	collectorsToRegister := []prometheus.Collector{
		m.connects, m.disconnects, m.deliveries, m.activeHandles, m.renders, m.stateEvents, m.connected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range collectorsToRegister {
		if err := m.registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, binding.ErrAlreadyClosed):
		return outcomeClosed
	default:
		return outcomeError
	}
}

func (m *Metrics) ConnectSettled(k binding.Key, err error) {
	m.connects.WithLabelValues(string(k), outcome(err)).Inc()
	if err == nil {
		m.activeHandles.Inc()
	}
}

func (m *Metrics) DisconnectSettled(k binding.Key, err error) {
	m.disconnects.WithLabelValues(string(k), outcome(err)).Inc()
	m.activeHandles.Dec()
}

func (m *Metrics) Delivered(k binding.Key) {
	m.deliveries.WithLabelValues(string(k)).Inc()
}

func (m *Metrics) Publish(r dashboard.Rendered) {
	m.renders.WithLabelValues(r.Type).Inc()
}

func (m *Metrics) StateEvent() { m.stateEvents.Inc() }

func (m *Metrics) SetConnected(ok bool) {
	if ok {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
