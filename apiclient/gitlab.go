package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitlabClient is the default Client adapter, grounded on the teacher's
// CreateGitlabClientWithToken pattern (clients/gitlabrepo/client.go) and its
// resource-handler pagination idiom (clients/gitlabrepo/issues.go).
type GitlabClient struct {
	gl                       *gitlab.Client
	groups                   *groupsService
	projects                 *projectsService
	mergeRequestDiscussions  *mrDiscussionsService
	issueDiscussions         *issueDiscussionsService
	pipelines                *pipelinesService
}

// NewGitlabClient builds a GitlabClient scoped to baseURL using oauthToken
// as a bearer OAuth2 token (spec.md §5's "obtains a scoped ApiClient from
// (gitlabUrl, auth.oauthToken)").
func NewGitlabClient(baseURL, oauthToken string) (*GitlabClient, error) {
	gl, err := gitlab.NewOAuthClient(oauthToken, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	c := &GitlabClient{gl: gl}
	c.groups = &groupsService{gl: gl}
	c.projects = &projectsService{gl: gl}
	c.mergeRequestDiscussions = &mrDiscussionsService{gl: gl}
	c.issueDiscussions = &issueDiscussionsService{gl: gl}
	c.pipelines = &pipelinesService{gl: gl}
	return c, nil
}

func (c *GitlabClient) Groups() GroupsService   { return c.groups }
func (c *GitlabClient) Projects() ProjectsService { return c.projects }
func (c *GitlabClient) MergeRequestDiscussions() MergeRequestDiscussionsService {
	return c.mergeRequestDiscussions
}
func (c *GitlabClient) IssueDiscussions() IssueDiscussionsService { return c.issueDiscussions }
func (c *GitlabClient) Pipelines() PipelinesService               { return c.pipelines }

// toRecords round-trips items through JSON so handlers and Storage deal in
// plain maps rather than SDK-specific structs, matching spec.md §5's "reads
// and writes a single JSON object" framing.
func toRecords(items any) ([]Record, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return records, nil
}

func toRecord(item any) (Record, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return record, nil
}

type groupsService struct{ gl *gitlab.Client }

func (s *groupsService) All(ctx context.Context, p Page) ([]Record, error) {
	groups, _, err := s.gl.Groups.ListGroups(&gitlab.ListGroupsOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return toRecords(groups)
}

func (s *groupsService) Details(ctx context.Context, groupID string) (Record, error) {
	group, _, err := s.gl.Groups.GetGroup(groupID, &gitlab.GetGroupOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("getting group %s: %w", groupID, err)
	}
	return toRecord(group)
}

func (s *groupsService) Subgroups(ctx context.Context, groupID string, p Page) ([]Record, error) {
	groups, _, err := s.gl.Groups.ListSubGroups(groupID, &gitlab.ListSubGroupsOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing subgroups of %s: %w", groupID, err)
	}
	return toRecords(groups)
}

func (s *groupsService) Members(ctx context.Context, groupID string, p Page) ([]Record, error) {
	members, _, err := s.gl.GroupMembers.ListAllGroupMembers(groupID, &gitlab.ListGroupMembersOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing members of group %s: %w", groupID, err)
	}
	return toRecords(members)
}

func (s *groupsService) Projects(ctx context.Context, groupID string, p Page) ([]Record, error) {
	projects, _, err := s.gl.Groups.ListGroupProjects(groupID, &gitlab.ListGroupProjectsOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing projects of group %s: %w", groupID, err)
	}
	return toRecords(projects)
}

func (s *groupsService) Issues(ctx context.Context, groupID string, p Page) ([]Record, error) {
	issues, _, err := s.gl.Issues.ListGroupIssues(groupID, &gitlab.ListGroupIssuesOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing issues of group %s: %w", groupID, err)
	}
	return toRecords(issues)
}

type projectsService struct{ gl *gitlab.Client }

func (s *projectsService) All(ctx context.Context, p Page) ([]Record, error) {
	projects, _, err := s.gl.Projects.ListProjects(&gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return toRecords(projects)
}

func (s *projectsService) Details(ctx context.Context, projectID string) (Record, error) {
	project, _, err := s.gl.Projects.GetProject(projectID, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", projectID, err)
	}
	return toRecord(project)
}

func (s *projectsService) Branches(ctx context.Context, projectID string, p Page) ([]Record, error) {
	branches, _, err := s.gl.Branches.ListBranches(projectID, &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing branches of project %s: %w", projectID, err)
	}
	return toRecords(branches)
}

func (s *projectsService) MergeRequests(ctx context.Context, projectID string, p Page) ([]Record, error) {
	mrs, _, err := s.gl.MergeRequests.ListProjectMergeRequests(projectID, &gitlab.ListProjectMergeRequestsOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing merge requests of project %s: %w", projectID, err)
	}
	return toRecords(mrs)
}

func (s *projectsService) Issues(ctx context.Context, projectID string, p Page) ([]Record, error) {
	issues, _, err := s.gl.Issues.ListProjectIssues(projectID, &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing issues of project %s: %w", projectID, err)
	}
	return toRecords(issues)
}

func (s *projectsService) Milestones(ctx context.Context, projectID string, p Page) ([]Record, error) {
	milestones, _, err := s.gl.ProjectMilestones.ListMilestones(projectID, &gitlab.ListMilestonesOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing milestones of project %s: %w", projectID, err)
	}
	return toRecords(milestones)
}

func (s *projectsService) Releases(ctx context.Context, projectID string, p Page) ([]Record, error) {
	releases, _, err := s.gl.Releases.ListReleases(projectID, &gitlab.ListReleasesOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing releases of project %s: %w", projectID, err)
	}
	return toRecords(releases)
}

func (s *projectsService) Pipelines(ctx context.Context, projectID string, p Page) ([]Record, error) {
	pipelines, _, err := s.gl.Pipelines.ListProjectPipelines(projectID, &gitlab.ListProjectPipelinesOptions{
		ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing pipelines of project %s: %w", projectID, err)
	}
	return toRecords(pipelines)
}

// vulnFindingsQuery mirrors the teacher's raw-REST idiom
// (clients/gitlabrepo/inactiveMaintainers.go) for endpoints the SDK does not
// wrap with a typed resource — GitLab's vulnerability findings API is an
// Ultimate-tier feature absent from gitlab.com/gitlab-org/api/client-go.
type vulnFindingsQuery struct {
	Page    int `url:"page,omitempty"`
	PerPage int `url:"per_page,omitempty"`
}

func (s *projectsService) VulnerabilityFindings(ctx context.Context, projectID string, p Page) ([]Record, error) {
	opt := &vulnFindingsQuery{Page: p.Page, PerPage: p.PerPage}
	path := fmt.Sprintf("projects/%s/vulnerability_findings", gitlab.PathEscape(projectID))

	req, err := s.gl.NewRequest(http.MethodGet, path, opt, []gitlab.RequestOptionFunc{gitlab.WithContext(ctx)})
	if err != nil {
		return nil, fmt.Errorf("creating vulnerability findings request: %w", err)
	}

	var records []Record
	if _, err := s.gl.Do(req, &records); err != nil {
		return nil, fmt.Errorf("listing vulnerability findings of project %s: %w", projectID, err)
	}
	return records, nil
}

type mrDiscussionsService struct{ gl *gitlab.Client }

func (s *mrDiscussionsService) All(ctx context.Context, projectID, mrIID string, p Page) ([]Record, error) {
	discussions, _, err := s.gl.Discussions.ListMergeRequestDiscussions(projectID, mustAtoi(mrIID),
		&gitlab.ListMergeRequestDiscussionsOptions{
			ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
		}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing discussions of merge request %s/%s: %w", projectID, mrIID, err)
	}
	return toRecords(discussions)
}

type issueDiscussionsService struct{ gl *gitlab.Client }

func (s *issueDiscussionsService) All(ctx context.Context, projectID, issueIID string, p Page) ([]Record, error) {
	discussions, _, err := s.gl.Discussions.ListIssueDiscussions(projectID, mustAtoi(issueIID),
		&gitlab.ListIssueDiscussionsOptions{
			ListOptions: gitlab.ListOptions{Page: p.Page, PerPage: p.PerPage},
		}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing discussions of issue %s/%s: %w", projectID, issueIID, err)
	}
	return toRecords(discussions)
}

type pipelinesService struct{ gl *gitlab.Client }

func (s *pipelinesService) Show(ctx context.Context, projectID, pipelineID string) (Record, error) {
	pipeline, _, err := s.gl.Pipelines.GetPipeline(projectID, mustAtoi(pipelineID), gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("getting pipeline %s/%s: %w", projectID, pipelineID, err)
	}
	return toRecord(pipeline)
}

// TestReport fetches the raw test report JSON directly (spec.md §6: "a
// direct REST fetch for the pipeline test report"), since
// gitlab.com/gitlab-org/api/client-go exposes it only as a typed
// PipelineTestReport struct that drops unknown fields the crawler must
// persist verbatim.
func (s *pipelinesService) TestReport(ctx context.Context, projectID, pipelineID string) (Record, error) {
	path := fmt.Sprintf("projects/%s/pipelines/%s/test_report", gitlab.PathEscape(projectID), pipelineID)

	req, err := s.gl.NewRequest(http.MethodGet, path, nil, []gitlab.RequestOptionFunc{gitlab.WithContext(ctx)})
	if err != nil {
		return nil, fmt.Errorf("creating test report request: %w", err)
	}

	var record Record
	if _, err := s.gl.Do(req, &record); err != nil {
		return nil, fmt.Errorf("fetching test report for pipeline %s/%s: %w", projectID, pipelineID, err)
	}
	return record, nil
}

func mustAtoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
