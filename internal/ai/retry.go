package ai

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultRetryBase = 250 * time.Millisecond
	maxRetryDelay    = 4 * time.Second
)

// retryingProvider retries transient failures with exponential backoff and
// full jitter. Only Unreachable and Timeout are retried.
type retryingProvider struct {
	Provider
	attempts int
	base     time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func WithRetry(p Provider, attempts int, base time.Duration) Provider {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = defaultRetryBase
	}
	return &retryingProvider{Provider: p, attempts: attempts, base: base, sleep: sleepCtx}
}

func (r *retryingProvider) Unwrap() Provider { return r.Provider }

func (r *retryingProvider) Generate(ctx context.Context, messages []Message) (*Result, error) {
	var (
		res *Result
		err error
	)
	for i := 0; i < r.attempts; i++ {
		res, err = r.Provider.Generate(ctx, messages)
		if err == nil || !retriable(err) || ctx.Err() != nil {
			return res, err
		}
		if i == r.attempts-1 {
			break
		}
		if serr := r.sleep(ctx, backoff(r.base, i)); serr != nil {
			return nil, err
		}
	}
	return res, err
}

func retriable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindUnreachable || kind == KindTimeout)
}

func backoff(base time.Duration, attempt int) time.Duration {
	ceil := base << uint(attempt)
	if ceil <= 0 || ceil > maxRetryDelay {
		ceil = maxRetryDelay
	}
	return time.Duration(rand.Int63n(int64(ceil))) + 1
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
