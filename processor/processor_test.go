package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ossf/gitlab-crawler/apiclient"
	"github.com/ossf/gitlab-crawler/apiclient/apiclienttest"
	sce "github.com/ossf/gitlab-crawler/errors"
	"github.com/ossf/gitlab-crawler/cursor"
	"github.com/ossf/gitlab-crawler/events"
	"github.com/ossf/gitlab-crawler/job"
	"github.com/ossf/gitlab-crawler/storage"
	"github.com/ossf/gitlab-crawler/throttle"
)

func testDeps(t *testing.T, api *apiclienttest.Client) Deps {
	t.Helper()
	return Deps{
		API:      api,
		Store:    storage.NewFileStore(t.TempDir()),
		Cursors:  cursor.New(events.New()),
		Throttle: throttle.New(throttle.Config{RequestsPerSecond: 1000}, nil),
		PerPage:  100,
	}
}

func groupRecords(from, to int) []apiclient.Record {
	var out []apiclient.Record
	for i := from; i <= to; i++ {
		out = append(out, apiclient.Record{"id": float64(i), "name": fmt.Sprintf("g%d", i)})
	}
	return out
}

// TestDiscoverGroupsTwoPages directly encodes spec.md §8 scenario S1: page
// 1 returns 100 groups (a full page), page 2 returns 50 (a partial page),
// and the cursor must land on {nextPage:3, hasNextPage:false}.
func TestDiscoverGroupsTwoPages(t *testing.T) {
	t.Parallel()

	api := &apiclienttest.Client{
		GroupsAllFunc: func(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error) {
			if p.Page == 1 {
				return groupRecords(1, 100), nil
			}
			return groupRecords(101, 150), nil
		},
	}
	d := testDeps(t, api)
	r := NewRegistry(d)

	j := job.New(job.DiscoverGroups, job.AllResourceID)

	res1 := r.Handle(context.Background(), j, nil)
	if !res1.Success {
		t.Fatalf("page 1: Success = false, err = %v", res1.Err)
	}
	if len(res1.DiscoveredJobs) != 100 {
		t.Fatalf("page 1: discovered %d jobs, want 100", len(res1.DiscoveredJobs))
	}
	c, ok := d.Cursors.GetCursor(job.DiscoverGroups, job.AllResourceID)
	if !ok || !c.HasNextPage || c.NextPage != 2 {
		t.Fatalf("page 1: cursor = %+v, want {NextPage:2 HasNextPage:true}", c)
	}

	res2 := r.Handle(context.Background(), j, nil)
	if !res2.Success {
		t.Fatalf("page 2: Success = false, err = %v", res2.Err)
	}
	if len(res2.DiscoveredJobs) != 50 {
		t.Fatalf("page 2: discovered %d jobs, want 50", len(res2.DiscoveredJobs))
	}
	c, ok = d.Cursors.GetCursor(job.DiscoverGroups, job.AllResourceID)
	if !ok || c.HasNextPage || c.NextPage != 3 {
		t.Fatalf("page 2: cursor = %+v, want {NextPage:3 HasNextPage:false}", c)
	}
}

func TestProjectDetailsDiscoversSevenChildren(t *testing.T) {
	t.Parallel()

	api := &apiclienttest.Client{
		ProjectsDetailsFunc: func(ctx context.Context, projectID string) (apiclient.Record, error) {
			return apiclient.Record{"id": float64(7), "name": "proj"}, nil
		},
	}
	d := testDeps(t, api)
	r := NewRegistry(d)

	j := job.New(job.ProjectDetails, "7")
	res := r.Handle(context.Background(), j, nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if len(res.DiscoveredJobs) != 7 {
		t.Fatalf("discovered %d jobs, want 7 (spec.md §4.4 PROJECT_DETAILS fan-out)", len(res.DiscoveredJobs))
	}
}

// TestProjectVulnerabilities403IsSkippedSuccess encodes spec.md §8
// scenario S6.
func TestProjectVulnerabilities403IsSkippedSuccess(t *testing.T) {
	t.Parallel()

	api := &apiclienttest.Client{
		ProjectsVulnerabilityFindingsFunc: func(ctx context.Context, projectID string, p apiclient.Page) ([]apiclient.Record, error) {
			return nil, errors.New("403 Forbidden")
		},
	}
	d := testDeps(t, api)
	r := NewRegistry(d)

	res := r.Handle(context.Background(), job.New(job.ProjectVulnerabilities, "3"), nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Data["skipped"] != true || res.Data["vulnerabilityCount"] != 0 {
		t.Errorf("Data = %v, want {vulnerabilityCount:0 skipped:true}", res.Data)
	}
}

func TestGroupDetails404IsEmptySuccess(t *testing.T) {
	t.Parallel()

	api := &apiclienttest.Client{
		GroupsDetailsFunc: func(ctx context.Context, groupID string) (apiclient.Record, error) {
			return nil, errors.New("404 Not Found")
		},
	}
	d := testDeps(t, api)
	r := NewRegistry(d)

	res := r.Handle(context.Background(), job.New(job.GroupDetails, "9"), nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Data["found"] != false {
		t.Errorf("Data = %v, want found=false", res.Data)
	}
	if len(res.DiscoveredJobs) != 0 {
		t.Errorf("discovered %d jobs, want 0 on a 404", len(res.DiscoveredJobs))
	}
}

func TestMergeRequestDiscussionsRequiresData(t *testing.T) {
	t.Parallel()

	d := testDeps(t, &apiclienttest.Client{})
	r := NewRegistry(d)

	res := r.Handle(context.Background(), job.New(job.MergeRequestDiscussions, "x"), nil)
	if res.Success {
		t.Fatal("Success = true, want false without projectId/mergeRequestIid")
	}
	if !errors.Is(res.Err, sce.ErrConfig) {
		t.Errorf("Err = %v, want ErrConfig", res.Err)
	}
}

func TestHandleMissingReportsErrHandlerMissing(t *testing.T) {
	t.Parallel()

	r := New()
	res := r.Handle(context.Background(), job.New(job.Type("UNKNOWN"), "1"), nil)
	if res.Success {
		t.Fatal("Success = true, want false for an unregistered type")
	}
	if !errors.Is(res.Err, sce.ErrHandlerMissing) {
		t.Errorf("Err = %v, want ErrHandlerMissing", res.Err)
	}
}

func TestProjectPipelinesDiscoversDetailsAndTestReportPerPipeline(t *testing.T) {
	t.Parallel()

	api := &apiclienttest.Client{
		ProjectsPipelinesFunc: func(ctx context.Context, projectID string, p apiclient.Page) ([]apiclient.Record, error) {
			return []apiclient.Record{{"id": float64(55)}}, nil
		},
	}
	d := testDeps(t, api)
	r := NewRegistry(d)

	res := r.Handle(context.Background(), job.New(job.ProjectPipelines, "1"), nil)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if len(res.DiscoveredJobs) != 2 {
		t.Fatalf("discovered %d jobs, want 2 (PIPELINE_DETAILS + PIPELINE_TEST_REPORTS)", len(res.DiscoveredJobs))
	}
	for _, child := range res.DiscoveredJobs {
		pid, _ := child.Data.DataString("projectId")
		pipelineID, _ := child.Data.DataString("pipelineId")
		if pid != "1" || pipelineID != "55" {
			t.Errorf("child %s data = %+v, want projectId=1 pipelineId=55", child.Type, child.Data)
		}
	}
}
