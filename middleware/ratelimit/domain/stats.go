package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão do limiter, registrada depois do Check.
// Path deve ser o padrão da rota (ex: /admin/breakers/{service}/reset) para não
// explodir a cardinalidade no Redis.
type StatsEvent struct {
	Identity string
	Allowed  bool
	// Tier é o tier que negou; vazio quando permitido.
	Tier     string
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// StatsStore grava eventos. É best-effort: erro nunca derruba a requisição.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsSummary são os contadores acumulados desde o início (ou desde o TTL, no Redis).
type StatsSummary struct {
	Allowed      int64            `json:"allowed"`
	Denied       int64            `json:"denied"`
	Degraded     int64            `json:"degraded"`
	DeniedByTier map[string]int64 `json:"denied_by_tier"`
}

// StatsReader expõe o resumo para a rota administrativa.
type StatsReader interface {
	Summary(ctx context.Context) (StatsSummary, error)
}
