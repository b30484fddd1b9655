// Package processor implements the ProcessorRegistry collaborator (spec.md
// §4.4): the mapping from job.Type to a handler that fetches a page or
// object, persists it, and yields child jobs — grounded on the teacher's
// per-resource handler structs (clients/gitlabrepo/issues.go,
// branches.go, releases.go), generalized from scorecard-check inputs to
// crawl outputs.
package processor

import (
	"context"
	"fmt"
	"sync"

	sce "github.com/ossf/gitlab-crawler/errors"
	"github.com/ossf/gitlab-crawler/job"
)

// Result is a handler's outcome (spec.md §4.4's
// `{success, data?, discoveredJobs?, error?}` contract).
type Result struct {
	Success        bool
	Data           map[string]any
	DiscoveredJobs []job.Job
	Err            error
}

// Handler fetches/writes one page or object for j and reports discovered
// child jobs. auth is the job's effective, already-refreshed credentials.
type Handler func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result

// Registry maps job.Type to its Handler (spec.md §4.4 C4).
type Registry struct {
	mu       sync.RWMutex
	handlers map[job.Type]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[job.Type]Handler)}
}

// Register installs handler for typ, replacing any existing registration.
func (r *Registry) Register(typ job.Type, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = handler
}

// Handle dispatches j to its registered handler. An unregistered type
// reports ErrHandlerMissing (spec.md §7: "Handler missing ... willRetry
// false"), which the Scheduler must treat as non-retryable.
func (r *Registry) Handle(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
	r.mu.RLock()
	h, ok := r.handlers[j.Type]
	r.mu.RUnlock()
	if !ok {
		return Result{Success: false, Err: sce.WithMessage(sce.ErrHandlerMissing, string(j.Type))}
	}
	return h(ctx, j, auth)
}

// requireDataString extracts a required string field from job data, or
// returns a terminal ErrConfig failure (spec.md §7 "Configuration (fatal
// to job)").
func requireDataString(j job.Job, key string) (string, *Result) {
	v, ok := j.Data.DataString(key)
	if !ok || v == "" {
		r := Result{Success: false, Err: sce.WithMessage(sce.ErrConfig, fmt.Sprintf("missing required data.%s", key))}
		return "", &r
	}
	return v, nil
}
