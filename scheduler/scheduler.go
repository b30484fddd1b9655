// Package scheduler implements the Scheduler collaborator (spec.md §4.5,
// C5): the priority, per-type-concurrency-bounded job queue with retries
// and pause/resume/stop. The Scheduler itself has no state export/import,
// state summary or queue statistics; cursor and discovery snapshots live
// on cursor.Registry and crawler.Crawler, and queued jobs are not
// exported. Grounded on the teacher's
// top-level orchestration shape (pkg/scorecard.go's single-pass check
// runner), generalized here into a persistent dispatch loop.
package scheduler

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ossf/gitlab-crawler/auth"
	"github.com/ossf/gitlab-crawler/config"
	"github.com/ossf/gitlab-crawler/cursor"
	sce "github.com/ossf/gitlab-crawler/errors"
	"github.com/ossf/gitlab-crawler/events"
	"github.com/ossf/gitlab-crawler/job"
	"github.com/ossf/gitlab-crawler/log"
	"github.com/ossf/gitlab-crawler/processor"
)

// singleObjectTypes never paginate: they fetch exactly one object and must
// not be re-enqueued for "more pages" after a successful completion.
var singleObjectTypes = map[job.Type]bool{
	job.GroupDetails:        true,
	job.ProjectDetails:      true,
	job.PipelineDetails:     true,
	job.PipelineTestReports: true,
}

// Scheduler is the job dispatch loop (spec.md §4.5).
type Scheduler struct {
	cfg       *config.Config
	registry  *processor.Registry
	refresher *auth.Refresher
	bus       *events.Bus
	cursors   *cursor.Registry
	logger    *log.Logger

	mu                 sync.Mutex
	queues             map[job.Type][]job.Job
	running            map[string]job.Job
	runningByType      map[job.Type]map[string]bool
	retryTimers        map[string]*time.Timer
	isRunning          bool
	isPaused           bool
	concurrency        int
	concurrencyPerType map[job.Type]int

	wg sync.WaitGroup
}

// New creates a Scheduler wired to its collaborators. cfg's concurrency
// and per-type caps seed the Scheduler's adjustable runtime values
// (spec.md §4.5's setConcurrency/setResourceConcurrency).
func New(cfg *config.Config, registry *processor.Registry, refresher *auth.Refresher, bus *events.Bus, cursors *cursor.Registry, logger *log.Logger) *Scheduler {
	perType := make(map[job.Type]int, len(cfg.ConcurrencyPerResourceType))
	for typ, n := range cfg.ConcurrencyPerResourceType {
		perType[typ] = n
	}
	return &Scheduler{
		cfg:                cfg,
		registry:           registry,
		refresher:          refresher,
		bus:                bus,
		cursors:            cursors,
		logger:             log.Or(logger),
		queues:             make(map[job.Type][]job.Job),
		running:            make(map[string]job.Job),
		runningByType:      make(map[job.Type]map[string]bool),
		retryTimers:        make(map[string]*time.Timer),
		concurrency:        cfg.Concurrency,
		concurrencyPerType: perType,
	}
}

// On registers listener for eventType, passing through to the EventBus.
func (s *Scheduler) On(eventType events.Type, listener events.Listener) int {
	return s.bus.On(eventType, listener)
}

// Off removes a listener previously registered via On.
func (s *Scheduler) Off(eventType events.Type, token int) {
	s.bus.Off(eventType, token)
}

// StartDiscovery enqueues the initial DISCOVER_GROUPS and DISCOVER_PROJECTS
// jobs and transitions to running (spec.md §4.5).
func (s *Scheduler) StartDiscovery() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return sce.ErrSchedulerRunning
	}
	s.isRunning = true
	s.isPaused = false
	s.mu.Unlock()

	s.bus.Emit(events.Event{Type: events.CrawlerStarted})

	s.EnqueueJob(job.New(job.DiscoverGroups, job.AllResourceID))
	s.EnqueueJob(job.New(job.DiscoverProjects, job.AllResourceID))
	return nil
}

// StartResourceType enqueues a single job for (typ, id), starting the
// scheduler if it is not already running (spec.md §4.5).
func (s *Scheduler) StartResourceType(typ job.Type, id string, opts ...job.Option) {
	s.mu.Lock()
	if !s.isRunning {
		s.isRunning = true
		s.isPaused = false
		s.mu.Unlock()
		s.bus.Emit(events.Event{Type: events.CrawlerStarted})
	} else {
		s.mu.Unlock()
	}
	s.EnqueueJob(job.New(typ, id, opts...))
}

// EnqueueJob filters j (spec.md §4.5.1), ensures a cursor entry exists,
// appends it to its type's queue, and triggers a dispatch tick.
func (s *Scheduler) EnqueueJob(j job.Job) {
	if !s.filter(j) {
		return
	}
	s.cursors.EnsureCursor(j.Type, j.ResourceID)

	s.mu.Lock()
	s.queues[j.Type] = append(s.queues[j.Type], j)
	s.mu.Unlock()

	s.dispatch()
}

// filter implements spec.md §4.5.1: the optional beforeJobStart hook, then
// includeResources narrowing for PROJECT_*/GROUP_* job types.
func (s *Scheduler) filter(j job.Job) bool {
	if hook := s.cfg.Hooks.BeforeJobStart; hook != nil && !hook(j) {
		return false
	}

	ir := s.cfg.IncludeResources
	typ := string(j.Type)
	switch {
	case strings.HasPrefix(typ, "PROJECT_"):
		if len(ir.ProjectIDs) > 0 && !containsString(ir.ProjectIDs, j.ResourceID) {
			return false
		}
		if len(ir.ProjectPaths) > 0 && !hasAnyPrefix(j.ResourcePath, ir.ProjectPaths) {
			return false
		}
	case strings.HasPrefix(typ, "GROUP_"):
		if len(ir.GroupIDs) > 0 && !containsString(ir.GroupIDs, j.ResourceID) {
			return false
		}
		if len(ir.GroupPaths) > 0 && !hasAnyPrefix(j.ResourcePath, ir.GroupPaths) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Pause flips isPaused; no JOB_STARTED is emitted while paused (spec.md
// §8 invariant 6). Idempotent.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.isPaused = true
	s.mu.Unlock()
	s.bus.Emit(events.Event{Type: events.CrawlerPaused})
}

// Resume flips isPaused off and re-triggers dispatch. Idempotent.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.isPaused = false
	s.mu.Unlock()
	s.bus.Emit(events.Event{Type: events.CrawlerResumed})
	s.dispatch()
}

// Stop clears all queues, cancels retry timers, and marks the scheduler
// stopped. Running jobs are not force-interrupted (spec.md §4.5, §5).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.queues = make(map[job.Type][]job.Job)
	for id, t := range s.retryTimers {
		t.Stop()
		delete(s.retryTimers, id)
	}
	s.isRunning = false
	s.mu.Unlock()

	s.bus.Emit(events.Event{Type: events.CrawlerStopped})
}

// StopAndDrain calls Stop and then blocks until every in-flight handler
// goroutine has finished, or ctx is done (SPEC_FULL.md supplemented
// feature: a graceful-shutdown variant of stop() for process supervisors
// that need to know drain completed before exiting).
func (s *Scheduler) StopAndDrain(ctx context.Context) error {
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetConcurrency adjusts the global concurrency cap and re-triggers
// dispatch immediately.
func (s *Scheduler) SetConcurrency(n int) {
	s.mu.Lock()
	s.concurrency = n
	s.mu.Unlock()
	s.dispatch()
}

// SetResourceConcurrency adjusts typ's per-type concurrency cap and
// re-triggers dispatch immediately.
func (s *Scheduler) SetResourceConcurrency(typ job.Type, n int) {
	s.mu.Lock()
	s.concurrencyPerType[typ] = n
	s.mu.Unlock()
	s.dispatch()
}

func (s *Scheduler) concurrencyFor(typ job.Type) int {
	if n, ok := s.concurrencyPerType[typ]; ok && n > 0 {
		return n
	}
	return s.concurrency
}

// dispatch runs one scheduling tick (spec.md §4.5.2): in stable type
// order, start as many jobs as the global and per-type concurrency caps
// allow, highest priority (then oldest) first.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	if !s.isRunning || s.isPaused {
		s.mu.Unlock()
		return
	}

	remaining := s.concurrency - len(s.running)
	if remaining <= 0 {
		s.mu.Unlock()
		return
	}

	types := make([]job.Type, 0, len(s.queues))
	for typ := range s.queues {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var toStart, started []job.Job
	for _, typ := range types {
		if remaining <= 0 {
			break
		}
		perTypeAvail := s.concurrencyFor(typ) - len(s.runningByType[typ])
		avail := min(remaining, perTypeAvail)
		if avail <= 0 {
			continue
		}

		queue := s.queues[typ]
		sort.SliceStable(queue, func(i, j int) bool {
			if queue[i].Priority != queue[j].Priority {
				return queue[i].Priority > queue[j].Priority
			}
			return queue[i].CreatedAt.Before(queue[j].CreatedAt)
		})

		n := min(avail, len(queue))
		toStart = append(toStart, queue[:n]...)
		s.queues[typ] = queue[n:]
		remaining -= n
	}

	for _, j := range toStart {
		if _, already := s.running[j.ID]; already {
			continue // double-dispatch guard (spec.md §4.5.3 step 1)
		}
		s.running[j.ID] = j
		if s.runningByType[j.Type] == nil {
			s.runningByType[j.Type] = make(map[string]bool)
		}
		s.runningByType[j.Type][j.ID] = true
		started = append(started, j)
	}
	s.mu.Unlock()

	for _, j := range started {
		s.wg.Add(1)
		go s.executeJob(j)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// executeJob runs j's handler to completion and feeds the outcome back
// into the scheduler (spec.md §4.5.3).
func (s *Scheduler) executeJob(j job.Job) {
	defer s.wg.Done()

	s.bus.Emit(events.Event{Type: events.JobStarted, Job: &j})

	effectiveAuth := j.Auth
	if effectiveAuth == nil {
		effectiveAuth = s.cfg.Auth
	}
	if s.refresher != nil && effectiveAuth != nil {
		if err := s.refresher.Refresh(context.Background(), effectiveAuth); err != nil {
			s.removeFromRunning(j)
			s.reportFailure(j, err)
			s.checkTermination()
			return
		}
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.cfg.TimeoutMS > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	resultCh := make(chan processor.Result, 1)
	go func() { resultCh <- s.registry.Handle(ctx, j, effectiveAuth) }()

	var res processor.Result
	var timedOut bool
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		timedOut = true
	}

	// Removing j from the running sets before reporting the outcome
	// matters: reportSuccess may re-enqueue the same job id (pagination
	// continuation), and the dispatch loop's double-dispatch guard would
	// otherwise see j as still running and silently drop the requeue.
	s.removeFromRunning(j)

	switch {
	case timedOut:
		s.reportFailure(j, sce.WithMessage(sce.ErrJobFailed, "timeout: "+ctx.Err().Error()))
	case !res.Success:
		s.reportFailure(j, res.Err)
	default:
		s.reportSuccess(j, res)
	}

	s.checkTermination()
}

// removeFromRunning removes j from the running sets.
func (s *Scheduler) removeFromRunning(j job.Job) {
	s.mu.Lock()
	delete(s.running, j.ID)
	delete(s.runningByType[j.Type], j.ID)
	s.mu.Unlock()
}

// checkTermination emits CRAWLER_STOPPED once no job is running, every
// queue is empty, and no retry timer is pending (spec.md §4.5.2
// termination clause).
func (s *Scheduler) checkTermination() {
	s.mu.Lock()
	empty := len(s.running) == 0 && allQueuesEmpty(s.queues) && len(s.retryTimers) == 0
	running := s.isRunning
	if empty && running {
		s.isRunning = false
	}
	s.mu.Unlock()

	if empty && running {
		s.bus.Emit(events.Event{Type: events.CrawlerStopped})
	}
}

func allQueuesEmpty(queues map[job.Type][]job.Job) bool {
	for _, q := range queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// reportSuccess emits JOB_COMPLETED, enqueues filtered discovered jobs,
// re-enqueues j itself if its cursor still has more pages (spec.md
// §4.5.4), and triggers another dispatch tick.
func (s *Scheduler) reportSuccess(j job.Job, res processor.Result) {
	s.bus.Emit(events.Event{
		Type: events.JobCompleted,
		Job:  &j,
		Payload: events.JobCompletedPayload{
			Result:         res.Data,
			DiscoveredJobs: res.DiscoveredJobs,
		},
	})

	if hook := s.cfg.Hooks.AfterJobComplete; hook != nil {
		safeCallHook(s.logger, func() { hook(j) })
	}

	for _, child := range res.DiscoveredJobs {
		s.EnqueueJob(child)
	}

	if !singleObjectTypes[j.Type] && s.cursors.HasMorePages(j.Type, j.ResourceID) {
		s.EnqueueJob(j.Requeue())
	}

	s.dispatch()
}

// reportFailure emits JOB_FAILED and, if within maxRetries, schedules a
// backoff timer that re-enqueues a retry clone (spec.md §4.5.3).
func (s *Scheduler) reportFailure(j job.Job, err error) {
	kind := sce.KindOf(err)
	terminal := kind == sce.KindConfiguration || kind == sce.KindHandlerMissing
	willRetry := !terminal && j.RetryCount < s.cfg.MaxRetries

	s.bus.Emit(events.Event{
		Type: events.JobFailed,
		Job:  &j,
		Payload: events.JobFailedPayload{
			Err:       err,
			Kind:      string(kind),
			Attempts:  j.RetryCount + 1,
			WillRetry: willRetry,
		},
	})

	if hook := s.cfg.Hooks.JobFailed; hook != nil {
		safeCallHook(s.logger, func() { hook(j, err) })
	}

	if !willRetry {
		s.dispatch()
		return
	}

	delay := retryDelay(s.cfg, j.RetryCount)
	retry := j.Retry()

	// The timer is stored under s.mu before its callback can take the lock,
	// and the retry is enqueued before the timer entry is dropped, so
	// checkTermination never sees the crawl as idle while a retry is pending.
	s.mu.Lock()
	s.retryTimers[j.ID] = time.AfterFunc(delay, func() {
		s.EnqueueJob(retry)
		s.mu.Lock()
		delete(s.retryTimers, j.ID)
		s.mu.Unlock()
		s.checkTermination()
	})
	s.mu.Unlock()
}

// retryDelay computes retryDelayMs · backoffFactor^retryCount ·
// (1 ± retryJitter·U[0,1]) (spec.md §4.5.3).
func retryDelay(cfg *config.Config, retryCount int) time.Duration {
	base := float64(cfg.RetryDelayMS) * math.Pow(cfg.RetryBackoffFactor, float64(retryCount))
	jitter := 1 + cfg.RetryJitter*(2*rand.Float64()-1)
	d := time.Duration(base*jitter) * time.Millisecond
	if d < 0 {
		d = 0
	}
	return d
}

func safeCallHook(logger *log.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(nil, "hook panicked", "recovered", r)
		}
	}()
	fn()
}
