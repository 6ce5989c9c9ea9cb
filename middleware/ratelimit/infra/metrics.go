package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implementa domain.DenialRecorder.
type PrometheusMetrics struct {
	denied   *prometheus.CounterVec
	fallback *prometheus.CounterVec
}

// NewPrometheusMetrics registra os contadores em reg (nil = não registra).
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		denied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Requests denied by the rate limiter, by endpoint and limit tier.",
		}, []string{"endpoint", "tier"}),
		fallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "store_fallback_total",
			Help:      "Checks answered by the in-process fallback because the shared store failed.",
		}, []string{"reason"}),
	}
}

func (m *PrometheusMetrics) RecordDenial(endpoint, tier string) {
	m.denied.WithLabelValues(endpoint, tier).Inc()
}

func (m *PrometheusMetrics) RecordFallback(reason string) {
	m.fallback.WithLabelValues(reason).Inc()
}

// Denied expõe o vetor para testes e dashboards locais.
func (m *PrometheusMetrics) Denied() *prometheus.CounterVec { return m.denied }
