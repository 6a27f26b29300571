package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/t77yq/task-roster/internal/scheduler"
)

func TestExponentialBackoff(t *testing.T) {
	s := &scheduler.ExponentialBackoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}

	assert.Equal(t, 100*time.Millisecond, s.NextRetry(0))
	assert.Equal(t, 200*time.Millisecond, s.NextRetry(1))
	assert.Equal(t, 800*time.Millisecond, s.NextRetry(3))
	assert.Equal(t, time.Second, s.NextRetry(4))
}

func TestRetryPolicy(t *testing.T) {
	strategy := &scheduler.ExponentialBackoff{InitialDelay: time.Millisecond, Multiplier: 1}
	policy := scheduler.NewRetryPolicy(1, strategy, zap.NewNop())
	ctx := context.Background()

	t.Run("retries contention once", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, "test", func(context.Context) error {
			calls++
			if calls == 1 {
				return scheduler.ErrTransactionTimeout
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, "test", func(context.Context) error {
			calls++
			return scheduler.ErrConflict
		})
		assert.ErrorIs(t, err, scheduler.ErrConflict)
		assert.Equal(t, 2, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, "test", func(context.Context) error {
			calls++
			return scheduler.ErrInvalidRule
		})
		assert.ErrorIs(t, err, scheduler.ErrInvalidRule)
		assert.Equal(t, 1, calls)
	})
}
