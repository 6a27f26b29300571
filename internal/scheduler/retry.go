package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryStrategy defines the interface for retry strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given retry attempt
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the next retry time using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// RetryPolicy retries operations that failed on contention
type RetryPolicy struct {
	logger   *zap.Logger
	attempts int
	strategy RetryStrategy
}

// NewRetryPolicy creates a policy that retries up to attempts extra times
func NewRetryPolicy(attempts int, strategy RetryStrategy, logger *zap.Logger) *RetryPolicy {
	if attempts < 0 {
		attempts = 0
	}
	return &RetryPolicy{
		logger:   logger.Named("retry"),
		attempts: attempts,
		strategy: strategy,
	}
}

// Do runs fn, running it again after a delay while it fails with a
// retryable error and attempts remain. The last error is returned.
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	for attempt := 0; attempt < p.attempts && IsRetryable(err); attempt++ {
		delay := p.strategy.NextRetry(attempt)
		p.logger.Warn("Retrying after contention",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		err = fn(ctx)
	}
	return err
}
