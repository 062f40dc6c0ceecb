// Package jobengine implements JobEngine: a background
// worker pool that polls due jobs, claims them atomically, drives an
// agent turn against a deterministically composed prompt, and applies
// the LLM post-hook's status/scheduling verdict.
package jobengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/tokencount"
	"github.com/robfig/cron/v3"
)

// Config tunes JobEngine's cadence and concurrency.
type Config struct {
	PollInterval      time.Duration
	JobTimeoutMinutes int
	MaxWorkers        int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.JobTimeoutMinutes <= 0 {
		c.JobTimeoutMinutes = 30
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
}

// Metrics receives JobEngine's counters; observability.Provider satisfies
// this structurally so jobengine never imports that package. A nil
// Metrics (the zero value of Engine.metrics) makes every call a no-op.
type Metrics interface {
	SetJobsInFlight(n int)
	IncClaimLost()
	IncJobsCompleted(status string)
}

// ClaimMirror is an optional durable claim mirror (queue.Mirror
// satisfies this structurally) consulted before the database's own
// atomic claim, so a crashed worker's claim is visible to every other
// process even before that worker's DB transaction would have timed
// out. A nil ClaimMirror makes Engine rely solely on its in-memory
// sync.Map plus the database UPDATE..WHERE.
type ClaimMirror interface {
	TryMark(ctx context.Context, jobID string) (bool, error)
	Unmark(ctx context.Context, jobID string) error
}

// Engine owns the enqueue loop, worker pool, and in-flight set.
type Engine struct {
	cfg        Config
	jobs       *entity.JobRepo
	instances  *entity.InstanceRepo
	inbox      *entity.InboxRepo
	composer   composerDeps
	runner     AgentRunner
	interp     Interpreter
	cronParser cron.Parser
	log        *slog.Logger
	metrics    Metrics
	claims     ClaimMirror
	tokens     *tokencount.Counter

	queue    chan string
	inFlight sync.Map
	wg       sync.WaitGroup
}

// WithMetrics attaches an optional Metrics sink. Additive: existing
// callers of New are unaffected.
func (e *Engine) WithMetrics(m Metrics) *Engine {
	e.metrics = m
	return e
}

// WithClaimMirror attaches an optional durable ClaimMirror. Additive:
// existing callers of New are unaffected.
func (e *Engine) WithClaimMirror(c ClaimMirror) *Engine {
	e.claims = c
	return e
}

// WithTokenCounter attaches a model-aware tokencount.Counter used to
// truncate prompt sections by token budget instead of byte length.
// Additive: existing callers of New are unaffected.
func (e *Engine) WithTokenCounter(c *tokencount.Counter) *Engine {
	e.tokens = c
	return e
}

func (e *Engine) reportInFlight() {
	if e.metrics == nil {
		return
	}
	n := 0
	e.inFlight.Range(func(_, _ any) bool { n++; return true })
	e.metrics.SetJobsInFlight(n)
}

// Deps bundles the EntityRepo family JobEngine needs, grouped to keep
// New's signature manageable.
type Deps struct {
	Jobs       *entity.JobRepo
	Instances  *entity.InstanceRepo
	Inbox      *entity.InboxRepo
	Users      *entity.UserRepo
	Social     *entity.SocialRepo
	Narratives *entity.NarrativeRepo
	Events     *entity.EventRepo
}

func New(cfg Config, deps Deps, runner AgentRunner, interp Interpreter, log *slog.Logger) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:       cfg,
		jobs:      deps.Jobs,
		instances: deps.Instances,
		inbox:     deps.Inbox,
		composer: composerDeps{
			users:      deps.Users,
			social:     deps.Social,
			narratives: deps.Narratives,
			instances:  deps.Instances,
			events:     deps.Events,
		},
		runner:     runner,
		interp:     interp,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		log:        log,
		queue:      make(chan string, 512),
	}
}

// Run performs startup recovery, then blocks driving the poll loop and
// worker pool until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	// Startup recovery: any job still "running" was orphaned by a dead
	// process, regardless of age.
	if _, err := e.jobs.RecoverStuck(ctx, time.Now().UTC()); err != nil {
		e.log.Error("jobengine: startup recovery failed", "error", err)
	}

	for i := 0; i < e.cfg.MaxWorkers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(e.queue)
			e.wg.Wait()
			return
		case <-ticker.C:
			e.recoverStale(ctx)
			e.enqueueDue(ctx)
		}
	}
}

// recoverStale reclaims jobs whose worker died mid-run: still "running"
// but untouched for longer than the job timeout.
func (e *Engine) recoverStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-time.Duration(e.cfg.JobTimeoutMinutes) * time.Minute)
	n, err := e.jobs.RecoverStuck(ctx, cutoff)
	if err != nil {
		e.log.Error("jobengine: stale recovery failed", "error", err)
		return
	}
	if n > 0 {
		e.log.Warn("jobengine: reset stale running jobs", "count", n)
	}
}

func (e *Engine) enqueueDue(ctx context.Context) {
	due, err := e.jobs.DueForRun(ctx, time.Now().UTC())
	if err != nil {
		e.log.Error("jobengine: due scan failed", "error", err)
		return
	}
	for _, j := range due {
		if j.JobType == entity.JobOngoing && j.TriggerConfig.MaxIterations > 0 && j.IterationCount >= j.TriggerConfig.MaxIterations {
			// The iteration cap is checked before another run is claimed:
			// a capped job completes here instead of running again.
			if err := e.jobs.Complete(ctx, j.JobID, entity.JobCompleted, "", nil); err != nil {
				e.log.Error("jobengine: complete capped job failed", "job_id", j.JobID, "error", err)
			} else if err := e.instances.SetStatus(ctx, j.InstanceID, entity.InstanceCompleted); err != nil {
				e.log.Error("jobengine: flip capped instance terminal failed", "job_id", j.JobID, "error", err)
			}
			continue
		}
		if _, loaded := e.inFlight.LoadOrStore(j.JobID, struct{}{}); loaded {
			continue
		}
		select {
		case e.queue <- j.JobID:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for jobID := range e.queue {
		e.processJob(ctx, jobID)
		e.inFlight.Delete(jobID)
		e.reportInFlight()
	}
}

func (e *Engine) processJob(ctx context.Context, jobID string) {
	if e.claims != nil {
		marked, err := e.claims.TryMark(ctx, jobID)
		if err != nil {
			e.log.Warn("jobengine: claim mirror unavailable, relying on db claim only", "job_id", jobID, "error", err)
		} else if !marked {
			if e.metrics != nil {
				e.metrics.IncClaimLost()
			}
			return // another process already holds this claim
		} else {
			defer func() {
				if err := e.claims.Unmark(ctx, jobID); err != nil {
					e.log.Warn("jobengine: claim mirror unmark failed", "job_id", jobID, "error", err)
				}
			}()
		}
	}

	claimed, err := e.jobs.Claim(ctx, jobID)
	if err != nil {
		e.log.Error("jobengine: claim failed", "job_id", jobID, "error", err)
		return
	}
	if !claimed {
		if e.metrics != nil {
			e.metrics.IncClaimLost()
		}
		return // another worker won the race
	}
	e.reportInFlight()

	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		e.log.Error("jobengine: re-read claimed job failed", "job_id", jobID, "error", err)
		return
	}

	inst, err := e.instances.Get(ctx, job.InstanceID)
	if err != nil {
		e.log.Error("jobengine: controlling instance missing", "job_id", jobID, "instance_id", job.InstanceID, "error", err)
		return
	}
	if err := e.instances.SetStatus(ctx, inst.InstanceID, entity.InstanceInProgress); err != nil {
		e.log.Error("jobengine: flip instance in_progress failed", "job_id", jobID, "error", err)
	}

	inputs, err := e.composer.gather(ctx, job, inst)
	if err != nil {
		e.log.Error("jobengine: prompt gather failed", "job_id", jobID, "error", err)
	}
	prompt := composePrompt(inputs, time.Now().UTC(), e.tokens)

	result, runErr := e.runner.Run(ctx, RunRequest{
		AgentID:           job.AgentID,
		EffectiveUserID:   job.EffectiveUserID(),
		WorkingSource:     entity.SourceJob,
		ForcedNarrativeID: job.NarrativeID,
		Prompt:            prompt,
	})
	if runErr != nil {
		e.log.Error("jobengine: agent run failed", "job_id", jobID, "error", runErr)
		result = &RunResult{FinalOutput: fmt.Sprintf("job run failed: %v", runErr)}
	}

	e.notify(ctx, job, result)

	verdict, err := e.interp.Interpret(ctx, InterpretRequest{Job: job, RunResult: result})
	if err != nil {
		e.log.Error("jobengine: interpret failed", "job_id", jobID, "error", err)
		verdict = e.fallbackVerdict(job, runErr)
	}

	e.applyVerdict(ctx, job, inst, verdict)
}

// notify writes the job's run output to the requester's inbox, titled with the job title and the requester's local time.
func (e *Engine) notify(ctx context.Context, job *entity.Job, result *RunResult) {
	title := job.Title
	if user, err := e.composer.users.Get(ctx, job.UserID); err == nil {
		title = fmt.Sprintf("%s - %s", job.Title, time.Now().In(user.Location()).Format("Jan 2 3:04pm"))
	}
	_, err := e.inbox.Create(ctx, &entity.InboxMessage{
		UserID:      job.UserID,
		Title:       title,
		Content:     result.FinalOutput,
		MessageType: entity.MessageJobResult,
		SourceType:  entity.SourceTypeJob,
		SourceID:    job.JobID,
	})
	if err != nil {
		e.log.Error("jobengine: inbox write failed", "job_id", job.JobID, "error", err)
	}
}

// fallbackVerdict is used only when the interpreter itself errors (e.g.
// provider outage): it conservatively fails one_off jobs and leaves
// recurring ones pending for the next cycle rather than losing state.
func (e *Engine) fallbackVerdict(job *entity.Job, runErr error) *InterpretResult {
	status := entity.JobFailed
	var next *time.Time
	if job.JobType != entity.JobOneOff {
		status = entity.JobPending
		t := time.Now().UTC().Add(e.cfg.PollInterval)
		next = &t
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return &InterpretResult{Status: status, LastError: msg, NextRunTime: next}
}

// applyVerdict persists the interpreter's verdict and, for a terminal
// outcome, flips the controlling instance to completed/failed.
func (e *Engine) applyVerdict(ctx context.Context, job *entity.Job, inst *entity.ModuleInstance, verdict *InterpretResult) {
	if err := e.jobs.Complete(ctx, job.JobID, verdict.Status, verdict.LastError, verdict.NextRunTime); err != nil {
		e.log.Error("jobengine: persist verdict failed", "job_id", job.JobID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.IncJobsCompleted(string(verdict.Status))
	}
	// iteration_count increases by exactly one per executed run for both
	// scheduled and ongoing jobs, including an ongoing job's terminal run
	// — one_off jobs have no iteration concept and are excluded.
	if job.JobType == entity.JobScheduled || job.JobType == entity.JobOngoing {
		if _, err := e.jobs.IncrementIteration(ctx, job.JobID); err != nil {
			e.log.Error("jobengine: increment iteration failed", "job_id", job.JobID, "error", err)
		}
	}

	if entity.TerminalJobStatuses[verdict.Status] {
		target := entity.InstanceCompleted
		if verdict.Status == entity.JobFailed {
			target = entity.InstanceFailed
		}
		if err := e.instances.SetStatus(ctx, inst.InstanceID, target); err != nil {
			e.log.Error("jobengine: flip instance terminal failed", "job_id", job.JobID, "error", err)
		}
		return
	}
	// Non-terminal: leave at in_progress, refreshed on the next claimed run.
}

// NextCronRun computes the next fire time of a cron expression strictly
// after after.
func (e *Engine) NextCronRun(expr string, after time.Time) (time.Time, error) {
	sched, err := e.cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
