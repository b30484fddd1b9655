package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ossf/gitlab-crawler/apiclient"
	"github.com/ossf/gitlab-crawler/cursor"
	"github.com/ossf/gitlab-crawler/job"
	"github.com/ossf/gitlab-crawler/storage"
	"github.com/ossf/gitlab-crawler/throttle"
)

// DefaultPerPage is the REST page size named in spec.md §4.4 ("default 100
// for REST").
const DefaultPerPage = 100

// Deps are the collaborators every handler closes over, built once per
// crawl. API is that crawl's single client: handlers do not build a client
// from the auth they are passed, so a per-job auth override or a refreshed
// token does not change the token API calls are made with.
type Deps struct {
	API      apiclient.Client
	Store    storage.Store
	Cursors  *cursor.Registry
	Throttle *throttle.Throttle
	PerPage  int
}

func (d Deps) perPage() int {
	if d.PerPage <= 0 {
		return DefaultPerPage
	}
	return d.PerPage
}

// isNotFound reports whether err's text indicates an HTTP 404, the
// "permission/absence" class that terminates pagination with an empty,
// successful result for every job type (spec.md §7).
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "404")
}

// isForbidden reports an HTTP 403, which on PROJECT_VULNERABILITIES alone
// is mapped to a skipped success rather than a terminal failure (spec.md
// §7, §8 scenario S6).
func isForbidden(err error) bool {
	return err != nil && strings.Contains(err.Error(), "403")
}

// recordID extracts a GitLab resource's numeric "id" field as a string.
func recordID(rec apiclient.Record) (string, bool) {
	return numericField(rec, "id")
}

// recordIID extracts a GitLab resource's project-scoped "iid" field (used
// by issues, merge requests) as a string.
func recordIID(rec apiclient.Record) (string, bool) {
	return numericField(rec, "iid")
}

func numericField(rec apiclient.Record, key string) (string, bool) {
	v, ok := rec[key]
	if !ok {
		return "", false
	}
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10), true
	case string:
		return n, n != ""
	default:
		return fmt.Sprint(n), true
	}
}

// paginateSpec is the per-job-type configuration shared by every
// paginated handler (spec.md §4.4 step 2).
type paginateSpec struct {
	typ       job.Type
	resource  string
	writePath string
	fetch     func(ctx context.Context, page, perPage int) ([]apiclient.Record, error)
	children  func(rec apiclient.Record) []job.Job
	// forbiddenIsSkip maps a 403 (not just 404) to a terminal skipped
	// success — used only by PROJECT_VULNERABILITIES (spec.md §7, S6).
	forbiddenIsSkip bool
}

// paginate implements the common paginated-endpoint algorithm (spec.md
// §4.4 step 2, step 4, step 5): read nextPage, call through Throttle,
// write results, advance the cursor, and surface child jobs computed from
// the current page only.
func paginate(ctx context.Context, d Deps, s paginateSpec) Result {
	page := d.Cursors.GetNextPage(s.typ, s.resource)
	perPage := d.perPage()

	var records []apiclient.Record
	err := d.Throttle.Do(ctx, string(s.typ), func(ctx context.Context) error {
		recs, ferr := s.fetch(ctx, page, perPage)
		if ferr != nil {
			return ferr
		}
		records = recs
		return nil
	})

	if err != nil {
		if isNotFound(err) {
			d.Cursors.RegisterCursor(s.typ, s.resource, page, false, "")
			return Result{Success: true, Data: map[string]any{"count": 0}}
		}
		if s.forbiddenIsSkip && isForbidden(err) {
			d.Cursors.RegisterCursor(s.typ, s.resource, page, false, "")
			return Result{Success: true, Data: map[string]any{"vulnerabilityCount": 0, "skipped": true}}
		}
		return Result{Success: false, Err: err}
	}

	if len(records) > 0 {
		items := make([]any, len(records))
		for i, r := range records {
			items[i] = r
		}
		if err := d.Store.WriteJSONL(s.writePath, items); err != nil {
			return Result{Success: false, Err: err}
		}
	}

	hasNext := len(records) == perPage
	d.Cursors.RegisterCursor(s.typ, s.resource, page, hasNext, "")

	var children []job.Job
	if s.children != nil {
		for _, rec := range records {
			children = append(children, s.children(rec)...)
		}
	}

	data := map[string]any{"count": len(records)}
	if s.typ == job.ProjectVulnerabilities {
		data["vulnerabilityCount"] = len(records)
		data["skipped"] = false
	}
	return Result{Success: true, Data: data, DiscoveredJobs: children}
}

// singleObjectSpec configures a GROUP_DETAILS/PROJECT_DETAILS/
// PIPELINE_DETAILS-shaped handler (spec.md §4.4 step 3).
type singleObjectSpec struct {
	typ       job.Type
	resource  string
	writePath string
	fetch     func(ctx context.Context) (apiclient.Record, error)
	children  func(rec apiclient.Record) []job.Job
}

// singleObject implements the single-object-endpoint algorithm.
func singleObject(ctx context.Context, d Deps, s singleObjectSpec) Result {
	var rec apiclient.Record
	err := d.Throttle.Do(ctx, string(s.typ), func(ctx context.Context) error {
		r, ferr := s.fetch(ctx)
		if ferr != nil {
			return ferr
		}
		rec = r
		return nil
	})

	if err != nil {
		if isNotFound(err) {
			return Result{Success: true, Data: map[string]any{"found": false}}
		}
		return Result{Success: false, Err: err}
	}

	if err := d.Store.WriteJSON(s.writePath, rec); err != nil {
		return Result{Success: false, Err: err}
	}

	var children []job.Job
	if s.children != nil {
		children = s.children(rec)
	}
	return Result{Success: true, Data: map[string]any{"found": true}, DiscoveredJobs: children}
}
