// Package apiclienttest provides a scriptable apiclient.Client stub for
// processor and scheduler unit tests, grounded on the teacher's
// clients/mockclients package (generated gomock stubs over the same
// collaborator seam).
package apiclienttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ossf/gitlab-crawler/apiclient"
)

// PageFunc answers one paginated call.
type PageFunc func(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error)

// ScopedPageFunc answers one paginated call scoped to a resource ID.
type ScopedPageFunc func(ctx context.Context, id string, p apiclient.Page) ([]apiclient.Record, error)

// ObjectFunc answers one single-object call scoped to a resource ID.
type ObjectFunc func(ctx context.Context, id string) (apiclient.Record, error)

// Client is a fully scriptable apiclient.Client. Zero-valued fields return
// an empty result; set only the funcs a given test exercises.
type Client struct {
	mu    sync.Mutex
	Calls []string

	GroupsAllFunc      PageFunc
	GroupsDetailsFunc  ObjectFunc
	GroupsSubgroupsFunc ScopedPageFunc
	GroupsMembersFunc   ScopedPageFunc
	GroupsProjectsFunc  ScopedPageFunc
	GroupsIssuesFunc    ScopedPageFunc

	ProjectsAllFunc                   PageFunc
	ProjectsDetailsFunc               ObjectFunc
	ProjectsBranchesFunc              ScopedPageFunc
	ProjectsMergeRequestsFunc         ScopedPageFunc
	ProjectsIssuesFunc                ScopedPageFunc
	ProjectsMilestonesFunc            ScopedPageFunc
	ProjectsReleasesFunc              ScopedPageFunc
	ProjectsPipelinesFunc             ScopedPageFunc
	ProjectsVulnerabilityFindingsFunc ScopedPageFunc

	MergeRequestDiscussionsFunc func(ctx context.Context, projectID, mrIID string, p apiclient.Page) ([]apiclient.Record, error)
	IssueDiscussionsFunc        func(ctx context.Context, projectID, issueIID string, p apiclient.Page) ([]apiclient.Record, error)

	PipelinesShowFunc       func(ctx context.Context, projectID, pipelineID string) (apiclient.Record, error)
	PipelinesTestReportFunc func(ctx context.Context, projectID, pipelineID string) (apiclient.Record, error)
}

func (c *Client) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, call)
}

func (c *Client) Groups() apiclient.GroupsService     { return (*groups)(c) }
func (c *Client) Projects() apiclient.ProjectsService { return (*projects)(c) }
func (c *Client) MergeRequestDiscussions() apiclient.MergeRequestDiscussionsService {
	return (*mrDiscussions)(c)
}
func (c *Client) IssueDiscussions() apiclient.IssueDiscussionsService { return (*issueDiscussions)(c) }
func (c *Client) Pipelines() apiclient.PipelinesService               { return (*pipelines)(c) }

type groups Client

func (g *groups) All(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(g)
	c.record(fmt.Sprintf("Groups.All(%d)", p.Page))
	if c.GroupsAllFunc == nil {
		return nil, nil
	}
	return c.GroupsAllFunc(ctx, p)
}

func (g *groups) Details(ctx context.Context, groupID string) (apiclient.Record, error) {
	c := (*Client)(g)
	c.record(fmt.Sprintf("Groups.Details(%s)", groupID))
	if c.GroupsDetailsFunc == nil {
		return apiclient.Record{}, nil
	}
	return c.GroupsDetailsFunc(ctx, groupID)
}

func (g *groups) Subgroups(ctx context.Context, groupID string, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(g)
	c.record(fmt.Sprintf("Groups.Subgroups(%s,%d)", groupID, p.Page))
	if c.GroupsSubgroupsFunc == nil {
		return nil, nil
	}
	return c.GroupsSubgroupsFunc(ctx, groupID, p)
}

func (g *groups) Members(ctx context.Context, groupID string, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(g)
	c.record(fmt.Sprintf("Groups.Members(%s,%d)", groupID, p.Page))
	if c.GroupsMembersFunc == nil {
		return nil, nil
	}
	return c.GroupsMembersFunc(ctx, groupID, p)
}

func (g *groups) Projects(ctx context.Context, groupID string, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(g)
	c.record(fmt.Sprintf("Groups.Projects(%s,%d)", groupID, p.Page))
	if c.GroupsProjectsFunc == nil {
		return nil, nil
	}
	return c.GroupsProjectsFunc(ctx, groupID, p)
}

func (g *groups) Issues(ctx context.Context, groupID string, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(g)
	c.record(fmt.Sprintf("Groups.Issues(%s,%d)", groupID, p.Page))
	if c.GroupsIssuesFunc == nil {
		return nil, nil
	}
	return c.GroupsIssuesFunc(ctx, groupID, p)
}

type projects Client

func (p *projects) All(ctx context.Context, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.All(%d)", pg.Page))
	if c.ProjectsAllFunc == nil {
		return nil, nil
	}
	return c.ProjectsAllFunc(ctx, pg)
}

func (p *projects) Details(ctx context.Context, projectID string) (apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.Details(%s)", projectID))
	if c.ProjectsDetailsFunc == nil {
		return apiclient.Record{}, nil
	}
	return c.ProjectsDetailsFunc(ctx, projectID)
}

func (p *projects) Branches(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.Branches(%s,%d)", projectID, pg.Page))
	if c.ProjectsBranchesFunc == nil {
		return nil, nil
	}
	return c.ProjectsBranchesFunc(ctx, projectID, pg)
}

func (p *projects) MergeRequests(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.MergeRequests(%s,%d)", projectID, pg.Page))
	if c.ProjectsMergeRequestsFunc == nil {
		return nil, nil
	}
	return c.ProjectsMergeRequestsFunc(ctx, projectID, pg)
}

func (p *projects) Issues(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.Issues(%s,%d)", projectID, pg.Page))
	if c.ProjectsIssuesFunc == nil {
		return nil, nil
	}
	return c.ProjectsIssuesFunc(ctx, projectID, pg)
}

func (p *projects) Milestones(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.Milestones(%s,%d)", projectID, pg.Page))
	if c.ProjectsMilestonesFunc == nil {
		return nil, nil
	}
	return c.ProjectsMilestonesFunc(ctx, projectID, pg)
}

func (p *projects) Releases(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.Releases(%s,%d)", projectID, pg.Page))
	if c.ProjectsReleasesFunc == nil {
		return nil, nil
	}
	return c.ProjectsReleasesFunc(ctx, projectID, pg)
}

func (p *projects) Pipelines(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.Pipelines(%s,%d)", projectID, pg.Page))
	if c.ProjectsPipelinesFunc == nil {
		return nil, nil
	}
	return c.ProjectsPipelinesFunc(ctx, projectID, pg)
}

func (p *projects) VulnerabilityFindings(ctx context.Context, projectID string, pg apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(p)
	c.record(fmt.Sprintf("Projects.VulnerabilityFindings(%s,%d)", projectID, pg.Page))
	if c.ProjectsVulnerabilityFindingsFunc == nil {
		return nil, nil
	}
	return c.ProjectsVulnerabilityFindingsFunc(ctx, projectID, pg)
}

type mrDiscussions Client

func (m *mrDiscussions) All(ctx context.Context, projectID, mrIID string, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(m)
	c.record(fmt.Sprintf("MergeRequestDiscussions.All(%s,%s,%d)", projectID, mrIID, p.Page))
	if c.MergeRequestDiscussionsFunc == nil {
		return nil, nil
	}
	return c.MergeRequestDiscussionsFunc(ctx, projectID, mrIID, p)
}

type issueDiscussions Client

func (i *issueDiscussions) All(ctx context.Context, projectID, issueIID string, p apiclient.Page) ([]apiclient.Record, error) {
	c := (*Client)(i)
	c.record(fmt.Sprintf("IssueDiscussions.All(%s,%s,%d)", projectID, issueIID, p.Page))
	if c.IssueDiscussionsFunc == nil {
		return nil, nil
	}
	return c.IssueDiscussionsFunc(ctx, projectID, issueIID, p)
}

type pipelines Client

func (pl *pipelines) Show(ctx context.Context, projectID, pipelineID string) (apiclient.Record, error) {
	c := (*Client)(pl)
	c.record(fmt.Sprintf("Pipelines.Show(%s,%s)", projectID, pipelineID))
	if c.PipelinesShowFunc == nil {
		return apiclient.Record{}, nil
	}
	return c.PipelinesShowFunc(ctx, projectID, pipelineID)
}

func (pl *pipelines) TestReport(ctx context.Context, projectID, pipelineID string) (apiclient.Record, error) {
	c := (*Client)(pl)
	c.record(fmt.Sprintf("Pipelines.TestReport(%s,%s)", projectID, pipelineID))
	if c.PipelinesTestReportFunc == nil {
		return apiclient.Record{}, nil
	}
	return c.PipelinesTestReportFunc(ctx, projectID, pipelineID)
}
