// Package errors defines the crawler core's error taxonomy (spec.md §7).
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates a job's required data/config was missing or
	// invalid; terminal, never retried (spec.md §7 "Configuration").
	ErrConfig = errors.New("configuration error")
	// ErrJobFailed is the generic transient-failure sentinel a handler
	// returns or throws for network/5xx/unexpected errors.
	ErrJobFailed = errors.New("job failed")
	// ErrHandlerMissing indicates no processor is registered for a job type.
	ErrHandlerMissing = errors.New("no handler registered for job type")
	// ErrSchedulerRunning is returned by startDiscovery when already running.
	ErrSchedulerRunning = errors.New("scheduler already running")
	// ErrSchedulerStopped indicates an operation was attempted after stop().
	ErrSchedulerStopped = errors.New("scheduler stopped")
	// ErrAuthRefresh indicates the external auth refresh round-trip failed.
	ErrAuthRefresh = errors.New("auth refresh failed")
	// ErrRateLimited indicates a 429/rate-limit response reached the
	// scheduler after the throttle's single in-call retry was exhausted.
	ErrRateLimited = errors.New("rate limited")
)

// WithMessage wraps one of the sentinels above with additional context,
// preserving errors.Is/As against the sentinel.
func WithMessage(e error, msg string) error {
	if len(msg) == 0 {
		return fmt.Errorf("%w", e)
	}
	return fmt.Errorf("%w: %s", e, msg)
}

// Kind classifies a terminal JOB_FAILED event per spec.md §7, so embedding
// callers can branch on failure class without string matching (SPEC_FULL.md
// supplemented feature #2).
type Kind string

const (
	KindTransient      Kind = "transient"
	KindPermission     Kind = "permission"
	KindConfiguration  Kind = "configuration"
	KindAuth           Kind = "auth"
	KindHandlerMissing Kind = "handler-missing"
	KindRateLimit      Kind = "rate-limit"
)

// KindOf classifies err against the sentinels declared in this package,
// defaulting to KindTransient for anything unrecognized (spec.md §7:
// "other errors ... " are transient by default).
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrConfig):
		return KindConfiguration
	case errors.Is(err, ErrHandlerMissing):
		return KindHandlerMissing
	case errors.Is(err, ErrAuthRefresh):
		return KindAuth
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	default:
		return KindTransient
	}
}
