package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPool_AcquireUpToCapacity(t *testing.T) {
	p := NewSlotPool(2)
	assert.Equal(t, 2, p.Cap())

	r1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	r2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r1()
	r2()
	assert.Equal(t, 0, p.InUse())
}

func TestSlotPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewSlotPool(2)
	r1, _ := p.Acquire(context.Background())
	_, _ = p.Acquire(context.Background())

	r1()
	r1()
	assert.Equal(t, 1, p.InUse())
}

func TestSlotPool_CanceledContextGetsNoSlot(t *testing.T) {
	p := NewSlotPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.InUse())
}

func TestSlotPool_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewSlotPool(0).Cap())
}
