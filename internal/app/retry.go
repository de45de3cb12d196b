package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/pkg/metrics"
)

// retryPolicy retries ledger calls that failed with ErrUnavailable. Outcome
// errors are returned on the first attempt.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func defaultRetry() retryPolicy {
	return retryPolicy{attempts: 2, backoff: 25 * time.Millisecond}
}

func retryTransient[T any](ctx context.Context, p retryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; ; attempt++ {
		out, err = fn(ctx)
		if err == nil || !errors.Is(err, repository.ErrUnavailable) || attempt >= p.attempts {
			return out, err
		}
		metrics.RecordTransientRetry(op)
		t := time.NewTimer(p.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return out, err
		case <-t.C:
		}
	}
}
