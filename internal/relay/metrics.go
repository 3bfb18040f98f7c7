package relay

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

// unsupportedMethod labels requests for methods outside Methods
const unsupportedMethod = "unsupported"

// Metrics records request outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	sessions      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_confirmations_total",
			Help: "Confirmation decisions, by decision.",
		}, []string{"decision"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions",
			Help: "Live session records.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.confirmations, m.sessions)
	}
	return m
}

// ObserveRequest counts one response. Method names come from peers, so only
// names in Methods become label values.
func (m *Metrics) ObserveRequest(method, outcome string) {
	if m == nil {
		return
	}
	if !slices.Contains(Methods, method) {
		method = unsupportedMethod
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveConfirmation(decision string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(decision).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
