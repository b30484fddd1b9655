package job

import (
	"testing"
)

func TestNewDefaultsResourceID(t *testing.T) {
	t.Parallel()

	j := New(DiscoverGroups, "")
	if j.ResourceID != AllResourceID {
		t.Errorf("ResourceID = %q, want %q", j.ResourceID, AllResourceID)
	}
	if j.Priority != 1000 {
		t.Errorf("Priority = %d, want 1000", j.Priority)
	}
	if j.ID == "" {
		t.Error("ID must not be empty")
	}
}

func TestNewUniqueIDs(t *testing.T) {
	t.Parallel()

	a := New(ProjectDetails, "42")
	b := New(ProjectDetails, "42")
	if a.ID == b.ID {
		t.Errorf("two jobs for the same (type, resourceId) must get distinct ids, got %q twice", a.ID)
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	parent := New(DiscoverProjects, AllResourceID)
	j := New(ProjectDetails, "7",
		WithResourcePath("acme/widgets"),
		WithData(Data{"projectId": "7"}),
		WithParent(parent.ID),
		WithPriority(42),
	)

	if j.ResourcePath != "acme/widgets" {
		t.Errorf("ResourcePath = %q", j.ResourcePath)
	}
	if v, ok := j.Data.DataString("projectId"); !ok || v != "7" {
		t.Errorf("Data[projectId] = %q, %v", v, ok)
	}
	if j.ParentJobID != parent.ID {
		t.Errorf("ParentJobID = %q, want %q", j.ParentJobID, parent.ID)
	}
	if j.Priority != 42 {
		t.Errorf("Priority = %d, want 42", j.Priority)
	}
}

func TestRetryIncrementsCountButKeepsID(t *testing.T) {
	t.Parallel()

	j := New(GroupDetails, "1")
	r := j.Retry()

	if r.ID != j.ID {
		t.Errorf("Retry() changed ID: %q -> %q", j.ID, r.ID)
	}
	if r.RetryCount != j.RetryCount+1 {
		t.Errorf("RetryCount = %d, want %d", r.RetryCount, j.RetryCount+1)
	}
}

func TestRequeueIsIdentical(t *testing.T) {
	t.Parallel()

	j := New(GroupIssues, "1")
	r := j.Requeue()

	if r.ID != j.ID || r.RetryCount != j.RetryCount || r.Type != j.Type {
		t.Errorf("Requeue() must be the identity clone, got %+v want %+v", r, j)
	}
}

// TestDefaultPriorityMatchesSpecTable guards the fixed per-type priority
// tiers spec.md §3 names, including the 200/100 split between
// PIPELINE_DETAILS and PIPELINE_TEST_REPORTS.
func TestDefaultPriorityMatchesSpecTable(t *testing.T) {
	t.Parallel()

	want := map[Type]int{
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

	if len(DefaultPriority) != len(want) {
		t.Fatalf("DefaultPriority has %d entries, want %d", len(DefaultPriority), len(want))
	}
	for typ, priority := range want {
		if got := DefaultPriority[typ]; got != priority {
			t.Errorf("DefaultPriority[%s] = %d, want %d", typ, got, priority)
		}
	}

	if DefaultPriority[PipelineDetails] == DefaultPriority[PipelineTestReports] {
		t.Error("PIPELINE_DETAILS and PIPELINE_TEST_REPORTS must not tie: details must outrank its test report")
	}
}

func TestDataStringMissing(t *testing.T) {
	t.Parallel()

	var d Data
	if _, ok := d.DataString("projectId"); ok {
		t.Error("nil Data must report missing keys as absent")
	}
}
