package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/ossf/gitlab-crawler/apiclient"
	"github.com/ossf/gitlab-crawler/apiclient/apiclienttest"
	"github.com/ossf/gitlab-crawler/config"
	"github.com/ossf/gitlab-crawler/job"
)

// TestRunDrainsOnEmptyDiscovery is an end-to-end smoke test: with no
// groups or projects to discover, a full crawl run must complete and
// return promptly (spec.md §8 S-series "run to completion" shape).
func TestRunDrainsOnEmptyDiscovery(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		OutputDir:                  t.TempDir(),
		Concurrency:                5,
		ConcurrencyPerResourceType: map[job.Type]int{},
		RequestsPerSecond:          1000,
		MaxRetries:                 1,
		RetryDelayMS:               1,
		RetryBackoffFactor:         2,
	}

	api := &apiclienttest.Client{
		GroupsAllFunc: func(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error) {
			return nil, nil
		},
		ProjectsAllFunc: func(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error) {
			return nil, nil
		},
	}

	c := New(cfg, api, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

// TestRunDiscoversProjectGraph drives one project through discovery,
// details, and one leaf page, asserting the crawl drains once every
// reachable job completes (spec.md §4.4's discovery graph, end to end).
func TestRunDiscoversProjectGraph(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		OutputDir:                  t.TempDir(),
		Concurrency:                10,
		ConcurrencyPerResourceType: map[job.Type]int{},
		RequestsPerSecond:          1000,
		MaxRetries:                 1,
		RetryDelayMS:               1,
		RetryBackoffFactor:         2,
	}

	api := &apiclienttest.Client{
		GroupsAllFunc: func(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error) {
			return nil, nil
		},
		ProjectsAllFunc: func(ctx context.Context, p apiclient.Page) ([]apiclient.Record, error) {
			if p.Page == 1 {
				return []apiclient.Record{{"id": float64(42), "path_with_namespace": "g/proj"}}, nil
			}
			return nil, nil
		},
		ProjectsDetailsFunc: func(ctx context.Context, projectID string) (apiclient.Record, error) {
			return apiclient.Record{"id": float64(42), "name": "proj"}, nil
		},
	}

	c := New(cfg, api, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	found := false
	for _, call := range api.Calls {
		if call == "Projects.Details(42)" {
			found = true
		}
	}
	if !found {
		t.Errorf("Calls = %v, want Projects.Details(42) to have run as PROJECT_DETAILS's discovered child", api.Calls)
	}
}
