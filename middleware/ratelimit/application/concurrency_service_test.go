package application

import (
	"context"
	"testing"
	"time"

	"guard-gateway/middleware/ratelimit/domain"
	"guard-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullPool nunca libera vaga.
type fullPool struct{}

func (fullPool) Acquire(ctx context.Context) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (fullPool) InUse() int { return 1 }
func (fullPool) Cap() int   { return 1 }

func TestConcurrencyService_NoPoolAlwaysAdmits(t *testing.T) {
	svc := ConcurrencyService{}
	release, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	release()
	assert.Zero(t, svc.InFlight())
	assert.Zero(t, svc.Capacity())
}

func TestConcurrencyService_TimeoutIsSaturation(t *testing.T) {
	svc := ConcurrencyService{Pool: fullPool{}, AcquireTimeout: 10 * time.Millisecond}

	_, err := svc.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrSaturated)
}

func TestConcurrencyService_CallerCancelIsNotSaturation(t *testing.T) {
	svc := ConcurrencyService{Pool: fullPool{}, AcquireTimeout: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrSaturated)
}

func TestConcurrencyService_TracksInFlight(t *testing.T) {
	svc := ConcurrencyService{Pool: infra.NewSlotPool(3)}

	release, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, svc.InFlight())
	assert.Equal(t, 3, svc.Capacity())

	release()
	assert.Zero(t, svc.InFlight())
}
