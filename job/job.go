// Package job defines the crawler core's unit of work and its fixed
// discriminated type set (spec.md §3, §6).
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the closed JobType enum (spec.md §6). Spellings are exact and
// stable: external systems (hooks, exported state) depend on them.
type Type string

const (
	DiscoverGroups           Type = "DISCOVER_GROUPS"
	DiscoverProjects         Type = "DISCOVER_PROJECTS"
	DiscoverSubgroups        Type = "DISCOVER_SUBGROUPS"
	GroupDetails             Type = "GROUP_DETAILS"
	GroupMembers             Type = "GROUP_MEMBERS"
	GroupProjects            Type = "GROUP_PROJECTS"
	GroupIssues              Type = "GROUP_ISSUES"
	ProjectDetails           Type = "PROJECT_DETAILS"
	ProjectBranches          Type = "PROJECT_BRANCHES"
	ProjectMergeRequests     Type = "PROJECT_MERGE_REQUESTS"
	ProjectIssues            Type = "PROJECT_ISSUES"
	ProjectMilestones        Type = "PROJECT_MILESTONES"
	ProjectReleases          Type = "PROJECT_RELEASES"
	ProjectPipelines         Type = "PROJECT_PIPELINES"
	ProjectVulnerabilities   Type = "PROJECT_VULNERABILITIES"
	MergeRequestDiscussions  Type = "MERGE_REQUEST_DISCUSSIONS"
	IssueDiscussions         Type = "ISSUE_DISCUSSIONS"
	PipelineDetails          Type = "PIPELINE_DETAILS"
	PipelineTestReports      Type = "PIPELINE_TEST_REPORTS"
)

// AllTypes enumerates the full JobType set, e.g. for default rate/priority
// table construction and validation.
var AllTypes = []Type{
	DiscoverGroups, DiscoverProjects, DiscoverSubgroups,
	GroupDetails, GroupMembers, GroupProjects, GroupIssues,
	ProjectDetails, ProjectBranches, ProjectMergeRequests, ProjectIssues,
	ProjectMilestones, ProjectReleases, ProjectPipelines, ProjectVulnerabilities,
	MergeRequestDiscussions, IssueDiscussions,
	PipelineDetails, PipelineTestReports,
}

// DefaultPriority is the fixed per-type priority table from spec.md §3.
var DefaultPriority = map[Type]int{
	DiscoverGroups:          1000,
	DiscoverProjects:        900,
	DiscoverSubgroups:       800,
	GroupDetails:            700,
	ProjectDetails:          700,
	GroupMembers:            600,
	GroupProjects:           600,
	GroupIssues:             500,
	ProjectBranches:         500,
	ProjectMergeRequests:    500,
	ProjectIssues:           500,
	ProjectMilestones:       400,
	ProjectReleases:         400,
	ProjectPipelines:        400,
	ProjectVulnerabilities:  300,
	MergeRequestDiscussions: 200,
	IssueDiscussions:        200,
	PipelineDetails:         200,
	PipelineTestReports:     100,
}

// AllResourceID is the sentinel resourceId for discovery jobs (spec.md §3).
const AllResourceID = "all"

// Data is the opaque auxiliary context a handler needs beyond resourceId,
// e.g. {"projectId": ..., "issueIid": ..., "mergeRequestIid": ..., "pipelineId": ...}.
type Data map[string]any

// AuthConfig holds OAuth credentials and refresh state for a job or for the
// scheduler's global default (spec.md §3). It is mutated in place by
// AuthRefresher.Refresh.
type AuthConfig struct {
	OAuthToken      string
	RefreshToken    string
	ClientID        string
	ClientSecret    string
	TokenExpiresAt  time.Time
	OnRefresh       func(token string)
}

// Job is a unit of work (spec.md §3).
type Job struct {
	ID           string
	Type         Type
	ResourceID   string
	ResourcePath string
	Data         Data
	Priority     int
	CreatedAt    time.Time
	RetryCount   int
	ParentJobID  string
	Auth         *AuthConfig
}

// New builds a Job with a fresh unique ID, the fixed default priority for
// its type, and CreatedAt set to now. ResourceID defaults to AllResourceID
// when empty, matching discovery jobs' sentinel.
func New(typ Type, resourceID string, opts ...Option) Job {
	if resourceID == "" {
		resourceID = AllResourceID
	}
	j := Job{
		ID:         NewID(typ, resourceID),
		Type:       typ,
		ResourceID: resourceID,
		Priority:   DefaultPriority[typ],
		CreatedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}

// NewID generates the `{type}-{resourceId}-{nonce}` job ID scheme named in
// spec.md §3.
func NewID(typ Type, resourceID string) string {
	return fmt.Sprintf("%s-%s-%s", typ, resourceID, uuid.NewString())
}

// Option customizes a Job built via New.
type Option func(*Job)

func WithResourcePath(p string) Option { return func(j *Job) { j.ResourcePath = p } }
func WithData(d Data) Option           { return func(j *Job) { j.Data = d } }
func WithParent(parentID string) Option {
	return func(j *Job) { j.ParentJobID = parentID }
}
func WithAuth(a *AuthConfig) Option { return func(j *Job) { j.Auth = a } }
func WithPriority(p int) Option     { return func(j *Job) { j.Priority = p } }

// Retry returns a clone of j with the same ID and fields, except that
// RetryCount is incremented and CreatedAt is reset to now — the only
// legitimate case of an identical job ID recurring via the scheduler's
// retry path (spec.md §4.5.3).
func (j Job) Retry() Job {
	clone := j
	clone.RetryCount = j.RetryCount + 1
	clone.CreatedAt = time.Now()
	return clone
}

// Requeue returns a clone of j identical in every field including ID and
// RetryCount — the re-enqueue-same-id pagination continuation path
// (spec.md §4.5.4).
func (j Job) Requeue() Job {
	return j
}

// DataString returns a string field from Data, or ok=false if absent or not
// a string. Handlers use this for required fields like projectId.
func (d Data) DataString(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}
