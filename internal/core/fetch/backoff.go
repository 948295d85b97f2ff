package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits step*n before the n-th retry.
type linearBackOff struct {
	step time.Duration
	n    int64
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// newRetryPolicy bounds the linear schedule to the given number of retries.
func newRetryPolicy(step time.Duration, retries int) backoff.BackOff {
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithMaxRetries(&linearBackOff{step: step}, uint64(retries))
	policy.Reset()
	return policy
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
