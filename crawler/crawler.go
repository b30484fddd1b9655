// Package crawler provides the top-level orchestration that wires a
// config.Config into a running Throttle + CursorRegistry + EventBus +
// ProcessorRegistry + Scheduler, grounded on the teacher's
// pkg.RunScorecard top-level wiring function (pkg/scorecard.go).
package crawler

import (
	"context"
	"time"

	"github.com/ossf/gitlab-crawler/apiclient"
	"github.com/ossf/gitlab-crawler/auth"
	"github.com/ossf/gitlab-crawler/config"
	"github.com/ossf/gitlab-crawler/cursor"
	"github.com/ossf/gitlab-crawler/events"
	"github.com/ossf/gitlab-crawler/job"
	"github.com/ossf/gitlab-crawler/log"
	"github.com/ossf/gitlab-crawler/processor"
	"github.com/ossf/gitlab-crawler/scheduler"
	"github.com/ossf/gitlab-crawler/storage"
	"github.com/ossf/gitlab-crawler/throttle"
)

// Crawler bundles the running collaborators for one crawl session.
type Crawler struct {
	Config    *config.Config
	API       apiclient.Client
	Store     storage.Store
	Cursors   *cursor.Registry
	Events    *events.Bus
	Throttle  *throttle.Throttle
	Refresher *auth.Refresher
	Registry  *processor.Registry
	Scheduler *scheduler.Scheduler
	Logger    *log.Logger
}

// New wires a full Crawler from cfg. api and refreshFunc are the two
// external collaborators the spec leaves out of scope (the GitLab
// REST/GraphQL client binding and the auth refresh round-trip); callers
// supply concrete implementations (apiclient.NewGitlabClient,
// auth.NewOAuthRefresher) or test doubles.
func New(cfg *config.Config, api apiclient.Client, refreshFunc auth.RefreshFunc) *Crawler {
	logger := log.New(log.ParseLevel(cfg.LogLevel))
	bus := events.New()
	cursors := cursor.New(bus)
	store := storage.NewFileStore(cfg.OutputDir)

	rates := make(map[string]float64, len(job.AllTypes))
	for _, typ := range job.AllTypes {
		rates[string(typ)] = cfg.RateFor(typ)
	}
	th := throttle.New(throttle.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		RatesByKey:        rates,
		JitterFactor:      0.1,
	}, logger)

	var refresher *auth.Refresher
	if refreshFunc != nil {
		refresher = auth.New(refreshFunc, 5*time.Minute)
	}

	deps := processor.Deps{
		API:      api,
		Store:    store,
		Cursors:  cursors,
		Throttle: th,
		PerPage:  processor.DefaultPerPage,
	}
	registry := processor.NewRegistry(deps)

	sched := scheduler.New(cfg, registry, refresher, bus, cursors, logger)

	return &Crawler{
		Config:    cfg,
		API:       api,
		Store:     store,
		Cursors:   cursors,
		Events:    bus,
		Throttle:  th,
		Refresher: refresher,
		Registry:  registry,
		Scheduler: sched,
		Logger:    logger,
	}
}

// Run starts full discovery and blocks until the crawl naturally drains
// (CRAWLER_STOPPED) or ctx is cancelled.
func (c *Crawler) Run(ctx context.Context) error {
	done := make(chan struct{}, 1)
	token := c.Scheduler.On(events.CrawlerStopped, func(events.Event) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer c.Scheduler.Off(events.CrawlerStopped, token)

	if err := c.Scheduler.StartDiscovery(); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return c.Scheduler.StopAndDrain(context.Background())
	}
}

// RunResourceType starts a scoped crawl rooted at a single (typ, id) job
// instead of full discovery, via Scheduler.StartResourceType, and blocks
// like Run.
func (c *Crawler) RunResourceType(ctx context.Context, typ job.Type, id string) error {
	done := make(chan struct{}, 1)
	token := c.Scheduler.On(events.CrawlerStopped, func(events.Event) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer c.Scheduler.Off(events.CrawlerStopped, token)

	c.Scheduler.StartResourceType(typ, id)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return c.Scheduler.StopAndDrain(context.Background())
	}
}

// ExportState snapshots the cursor registry (cursors and discovered
// resources) and the non-secret config for persistence between runs.
// Queued jobs are not part of the snapshot.
func (c *Crawler) ExportState() Snapshot {
	return Snapshot{
		Cursors: c.Cursors.ExportState(),
		Config:  c.Config.NonSecretSubset(),
	}
}

// ImportState restores a previously exported snapshot's cursors and
// discovered resources; its config part is not applied and no jobs are
// enqueued.
func (c *Crawler) ImportState(s Snapshot) {
	c.Cursors.ImportState(s.Cursors)
}

// Snapshot is the top-level exportable/importable crawl state: cursor and
// discovery state plus the non-secret config subset (no queued jobs).
type Snapshot struct {
	Cursors cursor.State   `json:"cursors"`
	Config  map[string]any `json:"config"`
}
