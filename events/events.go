// Package events implements the crawler's synchronous, per-scheduler
// publish/subscribe bus (spec.md §4.3).
package events

import (
	"sync"
	"time"

	"github.com/ossf/gitlab-crawler/job"
)

// Type is the closed set of lifecycle/progress events (spec.md §4.3).
type Type string

const (
	CrawlerStarted    Type = "CRAWLER_STARTED"
	CrawlerPaused     Type = "CRAWLER_PAUSED"
	CrawlerResumed    Type = "CRAWLER_RESUMED"
	CrawlerStopped    Type = "CRAWLER_STOPPED"
	JobStarted        Type = "JOB_STARTED"
	JobCompleted      Type = "JOB_COMPLETED"
	JobFailed         Type = "JOB_FAILED"
	PageCompleted     Type = "PAGE_COMPLETED"
	ResourceDiscovered Type = "RESOURCE_DISCOVERED"
)

// Event carries a timestamp, the originating job where applicable, and a
// type-specific payload.
type Event struct {
	Type      Type
	Timestamp time.Time
	Job       *job.Job
	Payload   any
}

// JobCompletedPayload is JOB_COMPLETED's payload (spec.md §4.3).
type JobCompletedPayload struct {
	Result         any
	Duration       time.Duration
	DiscoveredJobs []job.Job
}

// JobFailedPayload is JOB_FAILED's payload, extended per SPEC_FULL.md's
// supplemented feature #2 with a structured Kind.
type JobFailedPayload struct {
	Err      error
	Kind     string
	Attempts int
	WillRetry bool
}

// PageCompletedPayload is PAGE_COMPLETED's payload.
type PageCompletedPayload struct {
	ResourceType job.Type
	ResourceID   string
	Page         int
	HasNextPage  bool
}

// ResourceDiscoveredPayload is RESOURCE_DISCOVERED's payload.
type ResourceDiscoveredPayload struct {
	ResourceType job.Type
	ResourceID   string
	ParentID     string
}

// Listener receives events synchronously on the publisher's goroutine.
// Listeners must be non-blocking or return quickly (spec.md §4.3).
type Listener func(Event)

// Bus is a per-scheduler event publisher/subscriber.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]Listener
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[Type][]Listener)}
}

// On registers listener for eventType. Returns a token usable with Off.
func (b *Bus) On(eventType Type, listener Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
	return len(b.listeners[eventType]) - 1
}

// Off removes the listener previously registered under token for eventType.
// Safe to call with a stale token (no-op).
func (b *Bus) Off(eventType Type, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[eventType]
	if token < 0 || token >= len(ls) {
		return
	}
	ls[token] = nil
}

// Emit publishes an event synchronously to every registered listener for
// its Type. Timestamp is stamped if zero.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	ls := make([]Listener, len(b.listeners[e.Type]))
	copy(ls, b.listeners[e.Type])
	b.mu.RUnlock()

	for _, l := range ls {
		if l != nil {
			l(e)
		}
	}
}
