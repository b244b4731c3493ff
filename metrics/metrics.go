// Package metrics holds the Prometheus instruments of a realtime session.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics groups the instruments used by the client. All methods are safe on
// a nil receiver.
type Metrics struct {
	Events           *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	Connected        prometheus.Gauge
}

// New registers the instruments with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Realtime protocol events by direction and type.",
		}, []string{"direction", "type"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool handler latency in seconds.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the realtime transport is open.",
		}),
	}
}

func (m *Metrics) ObserveEvent(direction, eventType string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(direction, eventType).Inc()
}

func (m *Metrics) ObserveToolCall(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.ToolCalls.WithLabelValues(name, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
