// Package cursor implements the durable per-resource pagination cursor
// registry and discovered-resource set (spec.md §4.2).
package cursor

import (
	"fmt"
	"sync"
	"time"

	"github.com/ossf/gitlab-crawler/events"
	"github.com/ossf/gitlab-crawler/job"
)

// Cursor is a single resource's pagination state (spec.md §3).
type Cursor struct {
	NextPage    int
	NextCursor  string
	HasNextPage bool
	LastUpdated time.Time
}

// key uniquely identifies a (resourceType, resourceId) cursor entry.
type key struct {
	Type job.Type
	ID   string
}

func (k key) String() string { return fmt.Sprintf("%s:%s", k.Type, k.ID) }

// Registry tracks per-(resourceType, resourceId) pagination state and the
// set of discovered resources (spec.md §4.2, §3 DiscoveredResources).
type Registry struct {
	mu         sync.RWMutex
	cursors    map[key]Cursor
	discovered map[job.Type]map[string]struct{}
	bus        *events.Bus
}

// New creates an empty Registry. bus may be nil, in which case discovery
// and page-completion events are not published (useful in handler unit
// tests that construct a Registry without a full scheduler).
func New(bus *events.Bus) *Registry {
	return &Registry{
		cursors:    make(map[key]Cursor),
		discovered: make(map[job.Type]map[string]struct{}),
		bus:        bus,
	}
}

// RegisterCursor overwrites the entry for (typ, id) and emits PAGE_COMPLETED.
func (r *Registry) RegisterCursor(typ job.Type, id string, page int, hasNextPage bool, nextCursor string) Cursor {
	// nextPage always advances past the page just fetched, even when this
	// was the terminal page: S1 (spec.md §8) expects {nextPage:3,
	// hasNextPage:false} after fetching page 2 of 2.
	c := Cursor{
		NextPage:    page + 1,
		NextCursor:  nextCursor,
		HasNextPage: hasNextPage,
		LastUpdated: time.Now(),
	}

	r.mu.Lock()
	r.cursors[key{typ, id}] = c
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Emit(events.Event{
			Type: events.PageCompleted,
			Payload: events.PageCompletedPayload{
				ResourceType: typ,
				ResourceID:   id,
				Page:         page,
				HasNextPage:  hasNextPage,
			},
		})
	}
	return c
}

// EnsureCursor creates a pending {nextPage:1, hasNextPage:true} entry for
// (typ, id) if none exists yet, matching spec.md §4.5's "enqueueJob ...
// registers a cursor entry if none exists." Unlike RegisterCursor, this
// does not emit PAGE_COMPLETED: no page has actually been fetched yet.
func (r *Registry) EnsureCursor(typ job.Type, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{typ, id}
	if _, ok := r.cursors[k]; ok {
		return
	}
	r.cursors[k] = Cursor{NextPage: 1, HasNextPage: true, LastUpdated: time.Now()}
}

// GetCursor returns the entry for (typ, id), or ok=false if absent.
func (r *Registry) GetCursor(typ job.Type, id string) (Cursor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cursors[key{typ, id}]
	return c, ok
}

// GetNextPage returns nextPage for (typ, id), defaulting to 1 if absent.
func (r *Registry) GetNextPage(typ job.Type, id string) int {
	if c, ok := r.GetCursor(typ, id); ok {
		if c.NextPage < 1 {
			return 1
		}
		return c.NextPage
	}
	return 1
}

// HasMorePages reports whether (typ, id)'s cursor still has a next page.
// Absent entries are treated as having more pages (not yet fetched once).
func (r *Registry) HasMorePages(typ job.Type, id string) bool {
	c, ok := r.GetCursor(typ, id)
	if !ok {
		return true
	}
	return c.HasNextPage
}

// GetNextCursor returns the opaque cursor token for (typ, id), if any.
func (r *Registry) GetNextCursor(typ job.Type, id string) (string, bool) {
	c, ok := r.GetCursor(typ, id)
	if !ok || c.NextCursor == "" {
		return "", false
	}
	return c.NextCursor, true
}

// MarkResourceDiscovered idempotently adds id to the discovered set for
// typ. The first insertion emits RESOURCE_DISCOVERED; later ones are no-ops
// (spec.md §3 DiscoveredResources, §8 invariant 4).
func (r *Registry) MarkResourceDiscovered(typ job.Type, id string, parentID string) {
	r.mu.Lock()
	set, ok := r.discovered[typ]
	if !ok {
		set = make(map[string]struct{})
		r.discovered[typ] = set
	}
	if _, exists := set[id]; exists {
		r.mu.Unlock()
		return
	}
	set[id] = struct{}{}
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Emit(events.Event{
			Type: events.ResourceDiscovered,
			Payload: events.ResourceDiscoveredPayload{
				ResourceType: typ,
				ResourceID:   id,
				ParentID:     parentID,
			},
		})
	}
}

// IsDiscovered reports whether id was already marked discovered for typ.
func (r *Registry) IsDiscovered(typ job.Type, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.discovered[typ][id]
	return ok
}

// PendingEntry is one entry returned by GetPendingCursors.
type PendingEntry struct {
	Type job.Type
	ID   string
	Cursor
}

// GetPendingCursors returns all entries with HasNextPage == true.
func (r *Registry) GetPendingCursors() []PendingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PendingEntry
	for k, c := range r.cursors {
		if c.HasNextPage {
			out = append(out, PendingEntry{Type: k.Type, ID: k.ID, Cursor: c})
		}
	}
	return out
}

// State is the exportable/importable snapshot (spec.md §4.2, §6).
type State struct {
	Cursors            []CursorEntry            `json:"cursors"`
	DiscoveredResources map[job.Type][]string   `json:"discoveredResources"`
}

// CursorEntry pairs a key with its Cursor value for (de)serialization.
type CursorEntry struct {
	Type job.Type `json:"type"`
	ID   string   `json:"id"`
	Cursor
}

// ExportState snapshots cursors and discovered resources for persistence.
func (r *Registry) ExportState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := State{DiscoveredResources: make(map[job.Type][]string, len(r.discovered))}
	for k, c := range r.cursors {
		s.Cursors = append(s.Cursors, CursorEntry{Type: k.Type, ID: k.ID, Cursor: c})
	}
	for typ, set := range r.discovered {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		s.DiscoveredResources[typ] = ids
	}
	return s
}

// ImportState replaces cursors and discoveries by key (last write wins),
// matching spec.md §4.2's "importing replaces by key" and SPEC_FULL.md's
// resolution that importState merges rather than errors while the
// scheduler is running. No RESOURCE_DISCOVERED events are re-emitted for
// resources that were already known before the import.
func (r *Registry) ImportState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range s.Cursors {
		r.cursors[key{entry.Type, entry.ID}] = entry.Cursor
	}
	for typ, ids := range s.DiscoveredResources {
		set, ok := r.discovered[typ]
		if !ok {
			set = make(map[string]struct{})
			r.discovered[typ] = set
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
}
