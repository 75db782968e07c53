package scraper

import (
	"context"
	"math/rand"
	"time"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/session"
)

// retryPolicy retries transient page-load failures with exponential
// backoff capped at RetryBackoffMax.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics

	total int
}

func newRetryPolicy(cfg *config.Config, metrics *Metrics) *retryPolicy {
	return &retryPolicy{
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
		metrics:    metrics,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// retry budget is spent or ctx is done. op receives the zero-based attempt.
func (rp *retryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	for attempt := 0; ; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		if attempt >= rp.maxRetries || !session.Retryable(err) || ctx.Err() != nil {
			return err
		}

		rp.total++
		rp.metrics.IncRetries()
		if sleepErr := sleep(ctx, rp.backoff(attempt+1)); sleepErr != nil {
			return err
		}
	}
}

func (rp *retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if rp.max > 0 && delay > rp.max {
		delay = rp.max
	}
	return delay
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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

// pause sleeps base plus a random share of jitter.
func pause(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	return sleep(ctx, d)
}
