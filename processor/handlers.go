package processor

import (
	"context"
	"fmt"

	"github.com/ossf/gitlab-crawler/apiclient"
	"github.com/ossf/gitlab-crawler/job"
	"github.com/ossf/gitlab-crawler/storage"
)

// NewRegistry builds a Registry with a handler installed for every
// job.Type named in spec.md §6, wired to d, implementing the fixed
// parent→child discovery graph from spec.md §4.4.
func NewRegistry(d Deps) *Registry {
	r := New()

	r.Register(job.DiscoverGroups, handleDiscoverGroups(d))
	r.Register(job.DiscoverProjects, handleDiscoverProjects(d))
	r.Register(job.DiscoverSubgroups, handleDiscoverSubgroups(d))
	r.Register(job.GroupDetails, handleGroupDetails(d))
	r.Register(job.GroupMembers, handleGroupMembers(d))
	r.Register(job.GroupProjects, handleGroupProjects(d))
	r.Register(job.GroupIssues, handleGroupIssues(d))
	r.Register(job.ProjectDetails, handleProjectDetails(d))
	r.Register(job.ProjectBranches, handleProjectBranches(d))
	r.Register(job.ProjectMergeRequests, handleProjectMergeRequests(d))
	r.Register(job.ProjectIssues, handleProjectIssues(d))
	r.Register(job.ProjectMilestones, handleProjectMilestones(d))
	r.Register(job.ProjectReleases, handleProjectReleases(d))
	r.Register(job.ProjectPipelines, handleProjectPipelines(d))
	r.Register(job.ProjectVulnerabilities, handleProjectVulnerabilities(d))
	r.Register(job.MergeRequestDiscussions, handleMergeRequestDiscussions(d))
	r.Register(job.IssueDiscussions, handleIssueDiscussions(d))
	r.Register(job.PipelineDetails, handlePipelineDetails(d))
	r.Register(job.PipelineTestReports, handlePipelineTestReports(d))

	return r
}

// --- discovery jobs (resourceId is the sentinel "all") ---

func handleDiscoverGroups(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.DiscoverGroups,
			resource:  job.AllResourceID,
			writePath: storage.GroupsPath,
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Groups().All(ctx, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				id, ok := recordID(rec)
				if !ok {
					return nil
				}
				d.Cursors.MarkResourceDiscovered(job.GroupDetails, id, "")
				return []job.Job{job.New(job.GroupDetails, id, job.WithParent(j.ID))}
			},
		})
	}
}

func handleDiscoverProjects(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.DiscoverProjects,
			resource:  job.AllResourceID,
			writePath: storage.ProjectsPath,
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().All(ctx, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				id, ok := recordID(rec)
				if !ok {
					return nil
				}
				path, _ := rec["path_with_namespace"].(string)
				d.Cursors.MarkResourceDiscovered(job.ProjectDetails, id, "")
				return []job.Job{job.New(job.ProjectDetails, id, job.WithParent(j.ID), job.WithResourcePath(path))}
			},
		})
	}
}

// --- group-scoped jobs (resourceId is the group id) ---

func handleDiscoverSubgroups(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.DiscoverSubgroups,
			resource:  j.ResourceID,
			writePath: storage.GroupSubgroupsPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Groups().Subgroups(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				id, ok := recordID(rec)
				if !ok {
					return nil
				}
				d.Cursors.MarkResourceDiscovered(job.GroupDetails, id, j.ResourceID)
				return []job.Job{job.New(job.GroupDetails, id, job.WithParent(j.ID))}
			},
		})
	}
}

func handleGroupDetails(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return singleObject(ctx, d, singleObjectSpec{
			typ:       job.GroupDetails,
			resource:  j.ResourceID,
			writePath: storage.GroupDetailsPath(j.ResourceID),
			fetch: func(ctx context.Context) (apiclient.Record, error) {
				return d.API.Groups().Details(ctx, j.ResourceID)
			},
			children: func(rec apiclient.Record) []job.Job {
				gid := j.ResourceID
				return []job.Job{
					job.New(job.DiscoverSubgroups, gid, job.WithParent(j.ID)),
					job.New(job.GroupMembers, gid, job.WithParent(j.ID)),
					job.New(job.GroupProjects, gid, job.WithParent(j.ID)),
					job.New(job.GroupIssues, gid, job.WithParent(j.ID)),
				}
			},
		})
	}
}

func handleGroupMembers(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.GroupMembers,
			resource:  j.ResourceID,
			writePath: storage.GroupMembersPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Groups().Members(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

func handleGroupProjects(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.GroupProjects,
			resource:  j.ResourceID,
			writePath: storage.GroupProjectsPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Groups().Projects(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				id, ok := recordID(rec)
				if !ok {
					return nil
				}
				path, _ := rec["path_with_namespace"].(string)
				d.Cursors.MarkResourceDiscovered(job.ProjectDetails, id, j.ResourceID)
				return []job.Job{job.New(job.ProjectDetails, id, job.WithParent(j.ID), job.WithResourcePath(path))}
			},
		})
	}
}

func handleGroupIssues(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.GroupIssues,
			resource:  j.ResourceID,
			writePath: storage.GroupIssuesPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Groups().Issues(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				return issueDiscussionChild(d, j, rec)
			},
		})
	}
}

// --- project-scoped jobs (resourceId is the project id) ---

func handleProjectDetails(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return singleObject(ctx, d, singleObjectSpec{
			typ:       job.ProjectDetails,
			resource:  j.ResourceID,
			writePath: storage.ProjectDetailsPath(j.ResourceID),
			fetch: func(ctx context.Context) (apiclient.Record, error) {
				return d.API.Projects().Details(ctx, j.ResourceID)
			},
			children: func(rec apiclient.Record) []job.Job {
				pid := j.ResourceID
				return []job.Job{
					job.New(job.ProjectBranches, pid, job.WithParent(j.ID)),
					job.New(job.ProjectMergeRequests, pid, job.WithParent(j.ID)),
					job.New(job.ProjectIssues, pid, job.WithParent(j.ID)),
					job.New(job.ProjectMilestones, pid, job.WithParent(j.ID)),
					job.New(job.ProjectReleases, pid, job.WithParent(j.ID)),
					job.New(job.ProjectPipelines, pid, job.WithParent(j.ID)),
					job.New(job.ProjectVulnerabilities, pid, job.WithParent(j.ID)),
				}
			},
		})
	}
}

func handleProjectBranches(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.ProjectBranches,
			resource:  j.ResourceID,
			writePath: storage.ProjectBranchesPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().Branches(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

func handleProjectMergeRequests(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.ProjectMergeRequests,
			resource:  j.ResourceID,
			writePath: storage.ProjectMergeRequestsPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().MergeRequests(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				iid, ok := recordIID(rec)
				if !ok {
					return nil
				}
				pid := j.ResourceID
				cursorKey := fmt.Sprintf("%s-mr-%s", pid, iid)
				d.Cursors.MarkResourceDiscovered(job.MergeRequestDiscussions, cursorKey, pid)
				return []job.Job{job.New(
					job.MergeRequestDiscussions, cursorKey,
					job.WithParent(j.ID),
					job.WithData(job.Data{"projectId": pid, "mergeRequestIid": iid}),
				)}
			},
		})
	}
}

func handleProjectIssues(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.ProjectIssues,
			resource:  j.ResourceID,
			writePath: storage.ProjectIssuesPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().Issues(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				return issueDiscussionChild(d, j, rec)
			},
		})
	}
}

func handleProjectMilestones(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.ProjectMilestones,
			resource:  j.ResourceID,
			writePath: storage.ProjectMilestonesPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().Milestones(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

func handleProjectReleases(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.ProjectReleases,
			resource:  j.ResourceID,
			writePath: storage.ProjectReleasesPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().Releases(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

func handleProjectPipelines(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:       job.ProjectPipelines,
			resource:  j.ResourceID,
			writePath: storage.ProjectPipelinesPath(j.ResourceID),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().Pipelines(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
			children: func(rec apiclient.Record) []job.Job {
				id, ok := recordID(rec)
				if !ok {
					return nil
				}
				pid := j.ResourceID
				data := job.Data{"projectId": pid, "pipelineId": id}
				return []job.Job{
					job.New(job.PipelineDetails, fmt.Sprintf("%s-%s", pid, id), job.WithParent(j.ID), job.WithData(data)),
					job.New(job.PipelineTestReports, fmt.Sprintf("%s-%s", pid, id), job.WithParent(j.ID), job.WithData(data)),
				}
			},
		})
	}
}

func handleProjectVulnerabilities(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		return paginate(ctx, d, paginateSpec{
			typ:             job.ProjectVulnerabilities,
			resource:        j.ResourceID,
			writePath:       storage.ProjectVulnerabilitiesPath(j.ResourceID),
			forbiddenIsSkip: true,
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.Projects().VulnerabilityFindings(ctx, j.ResourceID, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

// --- discussion jobs (composite resourceId, spec.md §4.4) ---

// issueDiscussionChild builds the ISSUE_DISCUSSIONS child job for an issue
// record, shared by GROUP_ISSUES and PROJECT_ISSUES (spec.md §4.4).
func issueDiscussionChild(d Deps, parent job.Job, rec apiclient.Record) []job.Job {
	iid, ok := recordIID(rec)
	if !ok {
		return nil
	}
	pid, ok := numericField(rec, "project_id")
	if !ok {
		pid = parent.ResourceID
	}
	cursorKey := fmt.Sprintf("%s-issue-%s", pid, iid)
	d.Cursors.MarkResourceDiscovered(job.IssueDiscussions, cursorKey, pid)
	return []job.Job{job.New(
		job.IssueDiscussions, cursorKey,
		job.WithParent(parent.ID),
		job.WithData(job.Data{"projectId": pid, "issueIid": iid}),
	)}
}

func handleMergeRequestDiscussions(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		pid, failure := requireDataString(j, "projectId")
		if failure != nil {
			return *failure
		}
		iid, failure := requireDataString(j, "mergeRequestIid")
		if failure != nil {
			return *failure
		}
		return paginate(ctx, d, paginateSpec{
			typ:       job.MergeRequestDiscussions,
			resource:  j.ResourceID,
			writePath: storage.MergeRequestDiscussionsPath(pid, iid),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.MergeRequestDiscussions().All(ctx, pid, iid, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

func handleIssueDiscussions(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		pid, failure := requireDataString(j, "projectId")
		if failure != nil {
			return *failure
		}
		iid, failure := requireDataString(j, "issueIid")
		if failure != nil {
			return *failure
		}
		return paginate(ctx, d, paginateSpec{
			typ:       job.IssueDiscussions,
			resource:  j.ResourceID,
			writePath: storage.IssueDiscussionsPath(pid, iid),
			fetch: func(ctx context.Context, page, perPage int) ([]apiclient.Record, error) {
				return d.API.IssueDiscussions().All(ctx, pid, iid, apiclient.Page{Page: page, PerPage: perPage})
			},
		})
	}
}

func handlePipelineDetails(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		pid, failure := requireDataString(j, "projectId")
		if failure != nil {
			return *failure
		}
		pipelineID, failure := requireDataString(j, "pipelineId")
		if failure != nil {
			return *failure
		}
		return singleObject(ctx, d, singleObjectSpec{
			typ:       job.PipelineDetails,
			resource:  j.ResourceID,
			writePath: storage.PipelineDetailsPath(pid, pipelineID),
			fetch: func(ctx context.Context) (apiclient.Record, error) {
				return d.API.Pipelines().Show(ctx, pid, pipelineID)
			},
		})
	}
}

func handlePipelineTestReports(d Deps) Handler {
	return func(ctx context.Context, j job.Job, auth *job.AuthConfig) Result {
		pid, failure := requireDataString(j, "projectId")
		if failure != nil {
			return *failure
		}
		pipelineID, failure := requireDataString(j, "pipelineId")
		if failure != nil {
			return *failure
		}
		return singleObject(ctx, d, singleObjectSpec{
			typ:       job.PipelineTestReports,
			resource:  j.ResourceID,
			writePath: storage.PipelineTestReportPath(pid, pipelineID),
			fetch: func(ctx context.Context) (apiclient.Record, error) {
				return d.API.Pipelines().TestReport(ctx, pid, pipelineID)
			},
		})
	}
}
