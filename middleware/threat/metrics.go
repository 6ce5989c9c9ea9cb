package threat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics conta achados por tipo.
type Metrics struct {
	findings *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		findings: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "threat",
			Name:      "findings_total",
			Help:      "Threat pattern findings, by finding type.",
		}, []string{"type"}),
	}
}

func (m *Metrics) RecordFinding(t FindingType) {
	m.findings.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) Findings() *prometheus.CounterVec { return m.findings }
