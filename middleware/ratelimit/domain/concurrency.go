package domain

import (
	"context"
	"errors"
)

// ErrSaturated indica que nenhuma vaga liberou dentro do prazo de espera.
var ErrSaturated = errors.New("concurrency limit reached")

// SlotPool limita quantas requisições ficam em voo ao mesmo tempo (cada uma
// segura uma vaga enquanto espera o backend).
//
// Acquire bloqueia até conseguir vaga ou até ctx encerrar, devolvendo ctx.Err().
// O release devolvido é idempotente.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
	InUse() int
	Cap() int
}
