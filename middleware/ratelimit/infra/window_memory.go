package infra

import (
	"context"
	"sync"
	"time"

	"guard-gateway/middleware/ratelimit/domain"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryWindowStore é a aproximação local da janela deslizante.
//
// Cada chave guarda os timestamps admitidos. A entrada expira `window` depois do
// último uso (ttlcache) e é removida pelo janitor.
// Não é compartilhada entre instâncias: cada réplica conta sozinha.
type MemoryWindowStore struct {
	windows      *ttlcache.Cache[string, *windowLog]
	cleanupEvery time.Duration
}

type windowLog struct {
	mu   sync.Mutex
	hits []time.Time
}

type MemoryWindowOption func(*MemoryWindowStore)

func WithCleanupEvery(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		windows: ttlcache.New[string, *windowLog](
			ttlcache.WithDisableTouchOnHit[string, *windowLog](),
		),
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len devolve quantas chaves estão vivas (inclui as expiradas ainda não coletadas).
func (s *MemoryWindowStore) Len() int { return s.windows.Len() }

// Hit implementa domain.WindowStore.
func (s *MemoryWindowStore) Hit(_ context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.WindowResult, error) {
	if !rule.Enabled() {
		return domain.WindowResult{Allowed: true}, nil
	}

	k := key.String()
	item, _ := s.windows.GetOrSet(k, &windowLog{}, ttlcache.WithTTL[string, *windowLog](rule.Window))
	wl := item.Value()

	// lock por chave: requisições de chaves diferentes não disputam entre si.
	wl.mu.Lock()
	defer wl.mu.Unlock()

	cutoff := now.Add(-rule.Window)
	kept := wl.hits[:0]
	for _, at := range wl.hits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	wl.hits = kept

	// renova a expiração a partir do último uso
	s.windows.Set(k, wl, rule.Window)

	if len(wl.hits) >= rule.Limit {
		return domain.WindowResult{Allowed: false, Count: len(wl.hits)}, nil
	}
	wl.hits = append(wl.hits, now)
	return domain.WindowResult{Allowed: true, Count: len(wl.hits)}, nil
}

// Cleanup remove as janelas expiradas.
func (s *MemoryWindowStore) Cleanup() {
	s.windows.DeleteExpired()
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
