package upstream

import (
	"context"
	"time"
)

// Recorder receives one sample per upstream call attempt. The adaptive
// concurrency manager implements it; a nil Recorder is valid.
type Recorder interface {
	Record(success bool, latency time.Duration)
}

// RetryPolicy drives the Do combinator. Delay before attempt n (0-based) is
// min(BaseDelay * 2^n, MaxDelay); the per-attempt timeout starts at
// InitialTimeout and grows by TimeoutGrowth each attempt.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	InitialTimeout time.Duration
	TimeoutGrowth  float64
}

// DefaultRetryPolicy matches the upstream contract: up to 5 attempts,
// 1s·2^n capped at 30s between attempts, 30s initial timeout growing 1.5x.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		InitialTimeout: 30 * time.Second,
		TimeoutGrowth:  1.5,
	}
}

// Backoff returns the delay to sleep before retrying after attempt n.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// AttemptTimeout returns the per-call timeout for attempt n.
func (p RetryPolicy) AttemptTimeout(attempt int) time.Duration {
	t := float64(p.InitialTimeout)
	for i := 0; i < attempt; i++ {
		t *= p.TimeoutGrowth
	}
	return time.Duration(t)
}

// Do runs call under the retry policy. Only transient failures are retried;
// NotFound, Malformed and Unauthorized surface immediately. Each attempt is
// recorded as (success, latency) when rec is non-nil.
func Do[T any](ctx context.Context, policy RetryPolicy, rec Recorder, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(policy.Backoff(attempt - 1)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout(attempt))
		start := time.Now()
		v, err := call(attemptCtx)
		elapsed := time.Since(start)
		cancel()

		if rec != nil {
			rec.Record(err == nil, elapsed)
		}
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}
	return zero, lastErr
}
