package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy bounds an exponential backoff retry loop.
type BackoffPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxElapsedTime of 0 disables the wall-clock bound.
	MaxElapsedTime time.Duration
	// MaxRetries counts retries after the first attempt. Negative means
	// unbounded, which only makes sense together with MaxElapsedTime.
	MaxRetries int
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		MaxElapsedTime:  2 * time.Minute,
		MaxRetries:      3,
	}
}

func (p BackoffPolicy) backOff(ctx context.Context) backoff.BackOff {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = backoff.DefaultInitialInterval
	}
	maxInterval := p.MaxInterval
	if maxInterval < initial {
		maxInterval = initial
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = backoff.DefaultMultiplier
	}

	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMultiplier(multiplier),
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
	)
	if p.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

// RetryWithBackoff runs fn until it succeeds, the policy is exhausted, ctx is
// done, or retryable reports false for the returned error. A nil retryable
// retries every error. The error of the last attempt is returned unwrapped.
//
// notify, when non-nil, is called before every wait with the failed
// attempt's error and the upcoming delay.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	retryable func(error) bool,
	notify func(err error, wait time.Duration),
	fn func(context.Context) (T, error),
) (T, error) {
	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, backoff.Permanent(err)
		}
		if retryable != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}
	return backoff.RetryNotifyWithData(op, policy.backOff(ctx), n)
}

// RetryErrWithBackoff is RetryWithBackoff for operations without a result.
func RetryErrWithBackoff(
	ctx context.Context,
	policy BackoffPolicy,
	retryable func(error) bool,
	notify func(err error, wait time.Duration),
	fn func(context.Context) error,
) error {
	_, err := RetryWithBackoff(ctx, policy, retryable, notify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
