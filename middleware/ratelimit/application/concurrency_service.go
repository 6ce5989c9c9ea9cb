package application

import (
	"context"
	"time"

	"guard-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService aplica o prazo de espera por vaga no pool, sem saber nada de HTTP.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera até o ctx do chamador encerrar.
	AcquireTimeout time.Duration
}

// Acquire devolve domain.ErrSaturated quando o prazo de espera estoura, ou o erro
// do ctx quando foi o chamador que desistiu. Sem pool, sempre libera.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	wait := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, err := s.Pool.Acquire(wait)
	switch {
	case err == nil:
		return release, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, domain.ErrSaturated
	}
}

// InFlight devolve quantas vagas estão ocupadas (0 sem pool).
func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}

// Capacity devolve o total de vagas (0 sem pool).
func (s ConcurrencyService) Capacity() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.Cap()
}
