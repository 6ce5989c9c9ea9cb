package infra

import (
	"context"
	"sync"

	"guard-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64 `json:"allowed"`
	Denied   int64 `json:"denied"`
	Degraded int64 `json:"degraded"`
}

// MemoryStatsStore guarda os contadores no processo. É o store usado quando
// RATE_STATS_ENABLED=true sem Redis; não expira nada e não é compartilhado entre réplicas.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byRoute    map[string]Counters
	byIdentity map[string]Counters
	// byTier conta apenas negações, pelo tier que negou.
	byTier map[string]int64

	trackIdentities bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentities(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentities = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:    make(map[string]Counters),
		byIdentity: make(map[string]Counters),
		byTier:     make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bump(c Counters, ev domain.StatsEvent) Counters {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.Degraded {
		c.Degraded++
	}
	return c
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = bump(s.total, ev)
	s.byRoute[route] = bump(s.byRoute[route], ev)
	if s.trackIdentities {
		s.byIdentity[ev.Identity] = bump(s.byIdentity[ev.Identity], ev)
	}
	if !ev.Allowed && ev.Tier != "" {
		s.byTier[ev.Tier]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByIdentity() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byIdentity))
	for k, v := range s.byIdentity {
		out[k] = v
	}
	return out
}

// Summary implementa domain.StatsReader.
func (s *MemoryStatsStore) Summary(context.Context) (domain.StatsSummary, error) {
	total := s.Total()
	return domain.StatsSummary{
		Allowed:      total.Allowed,
		Denied:       total.Denied,
		Degraded:     total.Degraded,
		DeniedByTier: s.DeniedByTier(),
	}, nil
}

func (s *MemoryStatsStore) DeniedByTier() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byTier))
	for k, v := range s.byTier {
		out[k] = v
	}
	return out
}
