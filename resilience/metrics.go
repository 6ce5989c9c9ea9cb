package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics publica estado dos breakers e resultado das tentativas.
type Metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	attempts    *prometheus.CounterVec
}

// NewMetrics registra os coletores em reg (nil = não registra).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open).",
		}, []string{"service"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "circuit_breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"service", "from", "to"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "backend",
			Name:      "attempts_total",
			Help:      "Backend call attempts by outcome (success, failure, rejected).",
		}, []string{"service", "outcome"}),
	}
}

func (m *Metrics) transition(service string, from, to State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(service).Set(float64(to))
	m.transitions.WithLabelValues(service, from.String(), to.String()).Inc()
}

func (m *Metrics) attempt(service, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(service, outcome).Inc()
}

// Attempts expõe o vetor para testes.
func (m *Metrics) Attempts() *prometheus.CounterVec { return m.attempts }
