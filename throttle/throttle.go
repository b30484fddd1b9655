// Package throttle implements per-resource-key request admission pacing
// with exponential backoff and jitter on rate-limit responses (spec.md
// §4.1), grounded on the teacher's hand-rolled rate-limit transport
// (clients/githubrepo/roundtripper/rate_limit.go) rather than a generic
// backoff library — see DESIGN.md.
package throttle

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ossf/gitlab-crawler/log"
)

// Config configures a Throttle (spec.md §4.1). RequestsPerSecond is the
// fallback pacing rate; RatesByKey overrides it per resource key, letting
// one Throttle enforce the full per-resource-type rate table (spec.md
// §4.1's DISCOVER_*=1, GROUP_DETAILS/MEMBERS/ISSUES=2, PROJECT_DETAILS=5,
// etc.) instead of a single global rate.
type Config struct {
	RequestsPerSecond float64
	RatesByKey        map[string]float64
	BaseRetryDelay    time.Duration
	BackoffFactor     float64
	JitterFactor      float64
	MaxBackoff        time.Duration
}

// withDefaults fills zero-valued fields with spec.md §4.1's defaults.
// JitterFactor is the exception: zero is a valid setting (no jitter), so
// only a negative value is replaced by the 0.1 default.
func (c Config) withDefaults() Config {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0.1
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
	return c
}

// keyState is the per-resource-key admission/backoff state. interval is
// resolved once at creation from the key's configured rate, so every key
// paces independently even though Do's backoff math still reads the
// shared Config for its factor/jitter/max.
type keyState struct {
	mu             sync.Mutex
	interval       time.Duration
	lastAdmittedAt time.Time
	consecutiveErr int
}

// Throttle admits, per resource key, at most that key's RatesByKey rate
// (or Config.RequestsPerSecond when the key has none) calls/sec, retrying exactly once inside the call on a rate-limit response with
// exponential backoff and jitter (spec.md §4.1).
type Throttle struct {
	cfg    Config
	logger *log.Logger

	mu   sync.Mutex
	keys map[string]*keyState
}

// New creates a Throttle. cfg's zero fields are defaulted per spec.md §4.1.
func New(cfg Config, logger *log.Logger) *Throttle {
	return &Throttle{
		cfg:    cfg.withDefaults(),
		logger: log.Or(logger),
		keys:   make(map[string]*keyState),
	}
}

func (t *Throttle) stateFor(resourceKey string) *keyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.keys[resourceKey]
	if !ok {
		rate := t.cfg.RequestsPerSecond
		if r, ok := t.cfg.RatesByKey[resourceKey]; ok && r > 0 {
			rate = r
		}
		s = &keyState{interval: time.Duration(float64(time.Second) / rate)}
		t.keys[resourceKey] = s
	}
	return s
}

// Do admits one call for resourceKey, pacing to 1000/R ms since the key's
// last admitted call, then invokes fn. On a rate-limit error it sleeps a
// jittered exponential backoff and retries fn exactly once; any other
// error, or a second failure after that one retry, propagates to the
// caller for the Scheduler's own retry policy to handle (spec.md §4.1,
// §7).
func (t *Throttle) Do(ctx context.Context, resourceKey string, fn func(ctx context.Context) error) error {
	s := t.stateFor(resourceKey)

	if err := t.admit(ctx, s); err != nil {
		return err
	}

	err := fn(ctx)
	if err == nil {
		s.mu.Lock()
		s.consecutiveErr = 0
		s.mu.Unlock()
		return nil
	}

	if !IsRateLimitError(err) {
		return err
	}

	s.mu.Lock()
	s.consecutiveErr++
	errs := s.consecutiveErr
	s.mu.Unlock()

	delay := t.backoffDelay(errs)
	t.logger.V(1).Info("rate limited, backing off", "resourceKey", resourceKey, "delay", delay.String())

	if err := sleep(ctx, delay); err != nil {
		return err
	}

	if err := t.admit(ctx, s); err != nil {
		return err
	}

	retryErr := fn(ctx)
	s.mu.Lock()
	if retryErr == nil {
		s.consecutiveErr = 0
	}
	s.mu.Unlock()
	return retryErr
}

// admit blocks until 1000/R ms have elapsed since the key's last admitted
// call, at the key's own resolved rate, then records the admission time.
func (t *Throttle) admit(ctx context.Context, s *keyState) error {
	s.mu.Lock()
	wait := time.Duration(0)
	if !s.lastAdmittedAt.IsZero() {
		elapsed := time.Since(s.lastAdmittedAt)
		if elapsed < s.interval {
			wait = s.interval - elapsed
		}
	}
	s.mu.Unlock()

	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lastAdmittedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// backoffDelay computes min(maxBackoff, baseRetryDelay * backoffFactor^(errs-1) * (1 ± jitter*U[0,1])).
func (t *Throttle) backoffDelay(errs int) time.Duration {
	base := float64(t.cfg.BaseRetryDelay) * math.Pow(t.cfg.BackoffFactor, float64(errs-1))
	jitter := 1 + t.cfg.JitterFactor*(2*rand.Float64()-1)
	d := time.Duration(base * jitter)
	if d > t.cfg.MaxBackoff {
		d = t.cfg.MaxBackoff
	}
	if d < 0 {
		d = 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRateLimitError reports whether err's message indicates an HTTP 429 or
// a textual rate-limit rejection (spec.md §7's "Rate-limit response"
// definition in the GLOSSARY).
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
