package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mede cada Process por serviço e resultado (código de erro ou "OK").
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Dispatch calls by service type and outcome.",
		}, []string{"service", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch latency including validation, rate limiting and backend retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
	}
}

func (m *Metrics) observe(service ServiceType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(service), outcome).Inc()
	m.duration.WithLabelValues(string(service)).Observe(d.Seconds())
}

func (m *Metrics) Requests() *prometheus.CounterVec { return m.requests }
