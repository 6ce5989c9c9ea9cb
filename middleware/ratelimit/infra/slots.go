package infra

import (
	"context"
	"sync"
)

// SlotPool é um semáforo sobre channel.
type SlotPool struct {
	slots chan struct{}
}

// NewSlotPool cria um pool com capacity vagas (mínimo 1).
func NewSlotPool(capacity int) *SlotPool {
	return &SlotPool{slots: make(chan struct{}, max(capacity, 1))}
}

func (p *SlotPool) Acquire(ctx context.Context) (func(), error) {
	// ctx já encerrado não ganha vaga mesmo que haja espaço
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case p.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.slots }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *SlotPool) InUse() int { return len(p.slots) }

func (p *SlotPool) Cap() int { return cap(p.slots) }
