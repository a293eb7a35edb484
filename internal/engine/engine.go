package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/seantiz/ripq/internal/model"
	"github.com/seantiz/ripq/internal/runner"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultConcurrency = 1
	DefaultRetention   = time.Hour
)

var (
	// ErrValidation is returned when a submission has no script.
	ErrValidation = errors.New("no script provided")

	// ErrNotFound is returned for ids that never existed or were purged.
	ErrNotFound = errors.New("job not found or expired")

	// ErrDuplicateID is returned if a freshly generated id is already taken.
	ErrDuplicateID = errors.New("duplicate job id")
)

// Config controls dispatch and retention.
type Config struct {
	// Concurrency is the maximum number of simultaneous engine runs.
	Concurrency int

	// Retention is how long a finished job stays retrievable.
	Retention time.Duration
}

// History archives finished jobs. Implementations must be safe for concurrent use.
type History interface {
	RecordJob(ctx context.Context, s model.Summary) error
}

// Receipt is returned to the submitter. Position is the backlog length at
// submission time and is not kept up to date.
type Receipt struct {
	ID       string
	Status   model.Status
	Position int
}

// Engine owns the job store, the backlog, and the in-flight count.
type Engine struct {
	runner    runner.Runner
	artifacts *Artifacts
	history   History
	logger    *slog.Logger
	broker    *LogBroker
	reaper    *Reaper
	retention time.Duration
	slots     *semaphore.Weighted
	wg        sync.WaitGroup

	newID    func() string
	newToken func() string

	mu      sync.Mutex
	jobs    map[string]*model.Job
	backlog []string
	active  int
}

// NewEngine creates an engine. history may be nil.
func NewEngine(cfg Config, r runner.Runner, artifacts *Artifacts, history History, logger *slog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Engine{
		runner:    r,
		artifacts: artifacts,
		history:   history,
		logger:    logger,
		broker:    NewLogBroker(),
		reaper:    NewReaper(),
		retention: cfg.Retention,
		slots:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		newID:     model.NewID,
		newToken:  model.NewToken,
		jobs:      make(map[string]*model.Job),
	}
}

// Broker returns the engine's log broker for diagnostics streaming.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Submit stores a queued job, appends it to the backlog, and dispatches as
// much of the backlog as capacity allows. It never waits for execution.
func (e *Engine) Submit(req model.Request, origin model.Origin) (Receipt, error) {
	if len(req.Script) == 0 {
		return Receipt{}, ErrValidation
	}

	job := &model.Job{
		ID:          e.newID(),
		Token:       e.newToken(),
		Status:      model.StatusQueued,
		Request:     req,
		Origin:      origin,
		SubmittedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.jobs[job.ID]; exists {
		return Receipt{}, fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}

	e.jobs[job.ID] = job
	e.backlog = append(e.backlog, job.ID)
	jobsSubmitted.Inc()

	e.logger.Info("job queued",
		"job_id", job.ID,
		"input_bytes", len(req.Script),
		"profile", req.Options.Profile,
		"preset", req.Options.Preset,
	)

	e.advanceLocked()
	e.observeLocked()

	return Receipt{
		ID:       job.ID,
		Status:   model.StatusQueued,
		Position: len(e.backlog),
	}, nil
}

// JobStatus returns the current view of a job.
func (e *Engine) JobStatus(id string) (model.JobView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return model.JobView{}, ErrNotFound
	}

	v := model.JobView{
		ID:          job.ID,
		Status:      job.Status,
		SubmittedAt: job.SubmittedAt,
		StartedAt:   copyTime(job.StartedAt),
		CompletedAt: copyTime(job.CompletedAt),
	}

	switch job.Status {
	case model.StatusQueued:
		v.Position = slices.Index(e.backlog, id) + 1
	case model.StatusCompleted:
		if job.Result != nil {
			res := *job.Result
			v.Result = &res
		}
	case model.StatusFailed:
		v.Error = job.Error
	}

	return v, nil
}

// GlobalStatus returns backlog, in-flight, and store sizes.
func (e *Engine) GlobalStatus() model.QueueStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return model.QueueStats{
		Waiting: len(e.backlog),
		Active:  e.active,
		Stored:  len(e.jobs),
	}
}

// Wait blocks until all in-flight executions complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close disarms pending cleanups. Records and artifacts they would have
// removed are left as they are.
func (e *Engine) Close() {
	e.reaper.Stop()
}

// advanceLocked dispatches backlog heads while capacity is free. Entries whose
// record is gone or no longer queued are dropped without using a slot.
func (e *Engine) advanceLocked() {
	for len(e.backlog) > 0 {
		if !e.slots.TryAcquire(1) {
			return
		}

		id := e.backlog[0]
		e.backlog = e.backlog[1:]

		job, ok := e.jobs[id]
		if !ok || !model.ValidTransition(job.Status, model.StatusProcessing) {
			e.slots.Release(1)
			e.logger.Debug("skipping stale backlog entry", "job_id", id)
			continue
		}

		now := time.Now().UTC()
		job.Status = model.StatusProcessing
		job.StartedAt = &now
		e.active++

		d := dispatch{
			id:        job.ID,
			token:     job.Token,
			script:    job.Request.Script,
			options:   job.Request.Options,
			origin:    job.Origin,
			startedAt: now,
		}

		e.wg.Go(func() {
			e.execute(d)
		})
	}
}

// finish applies a terminal transition, releases the slot, arms cleanup, and
// pulls the next job.
func (e *Engine) finish(d dispatch, c completion) {
	e.mu.Lock()

	job, ok := e.jobs[d.id]
	var summary model.Summary
	recorded := ok && model.ValidTransition(job.Status, c.status)
	if recorded {
		now := time.Now().UTC()
		job.Status = c.status
		job.CompletedAt = &now
		job.Result = c.result
		job.Error = c.errMsg
		job.ExitCode = c.exitCode
		summary = model.Summarize(job)

		token := d.token
		e.reaper.Arm(d.id, e.retention, func() {
			e.purge(d.id, token)
		})
	} else {
		e.logger.Error("dropping completion for job not in processing state", "job_id", d.id)
	}

	e.active--
	e.slots.Release(1)
	e.advanceLocked()
	e.observeLocked()
	e.mu.Unlock()

	e.broker.Close(d.id)
	jobsFinished.WithLabelValues(string(c.status)).Inc()

	if recorded && e.history != nil {
		if err := e.history.RecordJob(context.Background(), summary); err != nil {
			e.logger.Error("record job history", "job_id", d.id, "error", err)
		}
	}
}

// purge removes a finished job's output artifact and record.
func (e *Engine) purge(id, token string) {
	if err := e.artifacts.RemoveOutput(token); err != nil {
		e.logger.Warn("remove output artifact", "job_id", id, "error", err)
	}

	e.mu.Lock()
	delete(e.jobs, id)
	e.observeLocked()
	e.mu.Unlock()

	e.broker.Remove(id)
	jobsPurged.Inc()
	e.logger.Info("job purged", "job_id", id)
}

// observeLocked publishes the current sizes to the queue gauges.
func (e *Engine) observeLocked() {
	backlogJobs.Set(float64(len(e.backlog)))
	activeJobs.Set(float64(e.active))
	storedJobs.Set(float64(len(e.jobs)))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
