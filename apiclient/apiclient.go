// Package apiclient defines the ApiClient collaborator (spec.md §6): the
// resource-shaped GitLab REST surface handlers call through Throttle. The
// core does not prescribe a transport — it depends only on this interface,
// named in SPEC_FULL.md's DOMAIN STACK section after the teacher's
// clients.RepoClient seam (clients/client.go).
package apiclient

import "context"

// Page bounds one paginated request. PerPage defaults per spec.md §5
// ("default 100 for REST") are applied by the handler, not here.
type Page struct {
	Page    int
	PerPage int
}

// Record is one GitLab resource as decoded JSON, written through Storage
// without further interpretation by the crawler core.
type Record = map[string]any

// Client is the full resource-shaped surface named in spec.md §6.
type Client interface {
	Groups() GroupsService
	Projects() ProjectsService
	MergeRequestDiscussions() MergeRequestDiscussionsService
	IssueDiscussions() IssueDiscussionsService
	Pipelines() PipelinesService
}

// GroupsService covers DISCOVER_GROUPS, GROUP_DETAILS, DISCOVER_SUBGROUPS,
// GROUP_MEMBERS, GROUP_PROJECTS, and GROUP_ISSUES.
type GroupsService interface {
	// All lists every group visible to the authenticated token
	// (DISCOVER_GROUPS).
	All(ctx context.Context, p Page) ([]Record, error)
	// Details fetches a single group by ID (GROUP_DETAILS).
	Details(ctx context.Context, groupID string) (Record, error)
	// Subgroups lists groupID's direct subgroups (DISCOVER_SUBGROUPS).
	Subgroups(ctx context.Context, groupID string, p Page) ([]Record, error)
	// Members lists groupID's members (GROUP_MEMBERS).
	Members(ctx context.Context, groupID string, p Page) ([]Record, error)
	// Projects lists groupID's direct projects (GROUP_PROJECTS).
	Projects(ctx context.Context, groupID string, p Page) ([]Record, error)
	// Issues lists groupID's issues (GROUP_ISSUES).
	Issues(ctx context.Context, groupID string, p Page) ([]Record, error)
}

// ProjectsService covers DISCOVER_PROJECTS, PROJECT_DETAILS, and every
// project-scoped listing job type.
type ProjectsService interface {
	// All lists every project visible to the authenticated token
	// (DISCOVER_PROJECTS).
	All(ctx context.Context, p Page) ([]Record, error)
	// Details fetches a single project by ID (PROJECT_DETAILS).
	Details(ctx context.Context, projectID string) (Record, error)
	// Branches lists projectID's branches (PROJECT_BRANCHES).
	Branches(ctx context.Context, projectID string, p Page) ([]Record, error)
	// MergeRequests lists projectID's merge requests
	// (PROJECT_MERGE_REQUESTS).
	MergeRequests(ctx context.Context, projectID string, p Page) ([]Record, error)
	// Issues lists projectID's issues (PROJECT_ISSUES).
	Issues(ctx context.Context, projectID string, p Page) ([]Record, error)
	// Milestones lists projectID's milestones (PROJECT_MILESTONES).
	Milestones(ctx context.Context, projectID string, p Page) ([]Record, error)
	// Releases lists projectID's releases (PROJECT_RELEASES).
	Releases(ctx context.Context, projectID string, p Page) ([]Record, error)
	// Pipelines lists projectID's pipelines (PROJECT_PIPELINES).
	Pipelines(ctx context.Context, projectID string, p Page) ([]Record, error)
	// VulnerabilityFindings lists projectID's vulnerability findings
	// (PROJECT_VULNERABILITIES). A 403 from GitLab (feature unavailable
	// on the instance's license tier) is the handler's responsibility to
	// map to a skipped-success outcome (spec.md §5).
	VulnerabilityFindings(ctx context.Context, projectID string, p Page) ([]Record, error)
}

// MergeRequestDiscussionsService covers MERGE_REQUEST_DISCUSSIONS.
type MergeRequestDiscussionsService interface {
	All(ctx context.Context, projectID string, mrIID string, p Page) ([]Record, error)
}

// IssueDiscussionsService covers ISSUE_DISCUSSIONS.
type IssueDiscussionsService interface {
	All(ctx context.Context, projectID string, issueIID string, p Page) ([]Record, error)
}

// PipelinesService covers PIPELINE_DETAILS and PIPELINE_TEST_REPORTS.
type PipelinesService interface {
	// Show fetches a single pipeline's detail (PIPELINE_DETAILS).
	Show(ctx context.Context, projectID string, pipelineID string) (Record, error)
	// TestReport fetches a pipeline's test report via the raw REST
	// endpoint named in spec.md §6
	// (GET /projects/{id}/pipelines/{id}/test_report) rather than the
	// SDK's typed test-report struct, so the record keeps every field
	// (PIPELINE_TEST_REPORTS).
	TestReport(ctx context.Context, projectID string, pipelineID string) (Record, error)
}
