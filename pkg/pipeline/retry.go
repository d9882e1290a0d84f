package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// withRetry runs op up to MaxAttempts times. Only transient failures are
// retried unless RetryAllErrors is set. It returns the number of attempts made.
func (p *Pipeline) withRetry(ctx context.Context, op func(ctx context.Context) (*Result, error)) (*Result, int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.profile.RetryInitialInterval
	b.MaxInterval = p.profile.RetryMaxInterval

	attempts := 0
	var lastErr error
	res, err := backoff.Retry(ctx, func() (*Result, error) {
		attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !p.retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.profile.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			kind := KindOf(err)
			RetriesTotal.WithLabelValues(string(kind)).Inc()
			p.log.Warn("pipeline: retrying", "attempt", attempts, "kind", kind, "next", next, "error", err)
		}),
	)
	if err == nil {
		return res, attempts, nil
	}

	var perr *Error
	if !errors.As(err, &perr) {
		// The context ended between attempts.
		cause := err
		if lastErr != nil {
			cause = errors.Join(err, lastErr)
		}
		return nil, attempts, newError(KindCanceled, "ask", cause)
	}
	return nil, attempts, err
}

func (p *Pipeline) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.profile.RetryAllErrors {
		return true
	}
	var perr *Error
	return errors.As(err, &perr) && perr.Transient()
}
