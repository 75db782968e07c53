package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-shows/session"
)

func TestRetryPolicyRespectsLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2

	rp := newRetryPolicy(cfg, NewMetrics())
	calls := 0
	err := rp.Do(context.Background(), func(attempt int) error {
		if attempt != calls {
			t.Fatalf("attempt = %d, want %d", attempt, calls)
		}
		calls++
		return session.ErrConnection{Err: errors.New("reset by peer")}
	})

	if err == nil {
		t.Fatalf("expected the last error to be returned")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if rp.total != 2 {
		t.Fatalf("total retries = %d, want 2", rp.total)
	}
}

func TestRetryPolicySkipsPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "not found", err: session.ErrNotFound{Err: errors.New("404")}},
		{name: "forbidden", err: session.ErrForbidden{Err: errors.New("403")}},
		{name: "missing element", err: session.ErrElementNotFound{Selector: "div.ready"}},
		{name: "canceled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxRetries = 3
			rp := newRetryPolicy(cfg, nil)

			calls := 0
			err := rp.Do(context.Background(), func(int) error {
				calls++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rp := newRetryPolicy(cfg, nil)

	if got := rp.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 200ms", got)
	}
	if got := rp.backoff(2); got != 400*time.Millisecond {
		t.Fatalf("backoff(2) = %v, want 400ms", got)
	}
	if got := rp.backoff(4); got != cfg.RetryBackoffMax {
		t.Fatalf("backoff(4) = %v, want %v", got, cfg.RetryBackoffMax)
	}
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleep = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
	if err := pause(context.Background(), 0, 0); err != nil {
		t.Fatalf("pause without delay = %v", err)
	}
}
