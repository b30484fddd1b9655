package throttle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoAdmitsAtConfiguredRate(t *testing.T) {
	t.Parallel()

	th := New(Config{RequestsPerSecond: 100}, nil)
	var calls int32

	start := time.Now()
	for i := 0; i < 5; i++ {
		err := th.Do(context.Background(), "k", func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
	// 5 calls at 100/s should take at least 4 intervals (~40ms), well under 1s.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, expected pacing to enforce some minimum spacing", elapsed)
	}
}

// TestRatesByKeyPaceIndependently guards spec.md §4.1's per-resource-type
// rate table: a slow key and a fast key sharing one Throttle must each
// pace at their own configured rate, not the Config-level default.
func TestRatesByKeyPaceIndependently(t *testing.T) {
	t.Parallel()

	th := New(Config{
		RequestsPerSecond: 1000, // fallback; "slow" overrides it far below
		RatesByKey:        map[string]float64{"slow": 20},
	}, nil)

	var fastCalls, slowCalls int32
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := th.Do(context.Background(), "fast", func(ctx context.Context) error {
			atomic.AddInt32(&fastCalls, 1)
			return nil
		}); err != nil {
			t.Fatalf("fast Do() error = %v", err)
		}
	}
	fastElapsed := time.Since(start)

	start = time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Do(context.Background(), "slow", func(ctx context.Context) error {
			atomic.AddInt32(&slowCalls, 1)
			return nil
		}); err != nil {
			t.Fatalf("slow Do() error = %v", err)
		}
	}
	slowElapsed := time.Since(start)

	if fastCalls != 5 || slowCalls != 3 {
		t.Fatalf("fastCalls = %d, slowCalls = %d, want 5 and 3", fastCalls, slowCalls)
	}
	// "slow" at 20/s needs ~2 intervals of 50ms between its 3 calls (~100ms);
	// "fast" at 1000/s should clear its 5 calls in well under that.
	if slowElapsed < 80*time.Millisecond {
		t.Errorf("slow key elapsed = %v, want >= ~100ms at its overridden 20/s rate", slowElapsed)
	}
	if fastElapsed >= slowElapsed {
		t.Errorf("fast key (elapsed %v) should clear its calls faster than the slow key (elapsed %v)", fastElapsed, slowElapsed)
	}
}

func TestDoRetriesOnceOnRateLimitError(t *testing.T) {
	t.Parallel()

	th := New(Config{
		RequestsPerSecond: 1000,
		BaseRetryDelay:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		JitterFactor:      0,
	}, nil)

	var attempts int32
	err := th.Do(context.Background(), "k", func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			return errors.New("429 Too Many Requests")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil after the single in-call retry", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDoDoesNotRetryNonRateLimitErrors(t *testing.T) {
	t.Parallel()

	th := New(Config{RequestsPerSecond: 1000}, nil)
	var attempts int32
	wantErr := errors.New("boom: connection reset")

	err := th.Do(context.Background(), "k", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-429 errors are not retried inside Throttle, spec.md §4.1)", attempts)
	}
}

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want bool
	}{
		{"HTTP 429: too many requests", true},
		{"rate limit exceeded", true},
		{"Too Many Requests", true},
		{"connection refused", false},
		{"", false},
	}
	for _, tt := range tests {
		var err error
		if tt.msg != "" {
			err = errors.New(tt.msg)
		}
		if got := IsRateLimitError(err); got != tt.want {
			t.Errorf("IsRateLimitError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	th := New(Config{RequestsPerSecond: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	// first call admits immediately.
	if err := th.Do(ctx, "k", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first Do() error = %v", err)
	}
	cancel()

	// second call would need to wait ~1s for pacing; cancellation must
	// short-circuit that wait instead of blocking the test.
	err := th.Do(ctx, "k", func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("Do() with a cancelled context must return an error")
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	t.Parallel()

	th := New(Config{
		BaseRetryDelay: 10 * time.Millisecond,
		BackoffFactor:  2,
		JitterFactor:   0,
		MaxBackoff:     25 * time.Millisecond,
	}, nil)

	if d := th.backoffDelay(1); d != 10*time.Millisecond {
		t.Errorf("backoffDelay(1) = %v, want 10ms", d)
	}
	if d := th.backoffDelay(2); d != 20*time.Millisecond {
		t.Errorf("backoffDelay(2) = %v, want 20ms", d)
	}
	if d := th.backoffDelay(10); d != 25*time.Millisecond {
		t.Errorf("backoffDelay(10) = %v, want capped at maxBackoff 25ms", d)
	}
}
