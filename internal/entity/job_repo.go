package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/idgen"
	"github.com/agentctx/platform/internal/store"
	"github.com/agentctx/platform/internal/vectorstore"
)

// JobRepo is the typed accessor for Job rows, owning the atomic claim
// operation JobEngine's worker pool depends on.
type JobRepo struct {
	db    store.Store
	index vectorstore.Index // optional accelerator over embedding; nil falls back to db.SemanticSearch
}

func NewJobRepo(db store.Store) *JobRepo { return &JobRepo{db: db} }

// WithVectorIndex attaches a vectorstore.Index that SemanticSearch and
// Create consult/populate in addition to the SQL cosine scan. Additive:
// existing callers of NewJobRepo are unaffected.
func (r *JobRepo) WithVectorIndex(idx vectorstore.Index) *JobRepo {
	r.index = idx
	return r
}

// WithStore returns a copy of the repo bound to s, used to run writes
// inside an existing transaction scope (s is typically a store.Tx).
func (r *JobRepo) WithStore(s store.Store) *JobRepo {
	c := *r
	c.db = s
	return &c
}

func (r *JobRepo) Create(ctx context.Context, j *Job) (*Job, error) {
	if j.InstanceID == "" {
		return nil, errs.Validation("job: instance_id is required")
	}
	if err := validateTriggerConfig(j.JobType, j.TriggerConfig); err != nil {
		return nil, err
	}
	if j.JobID == "" {
		j.JobID = idgen.New(idgen.PrefixJob)
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	_, err := r.db.Insert(ctx, TableJobs, jobToRow(j))
	if err != nil {
		return nil, errs.Internal("job: insert failed", err)
	}
	r.indexUpsert(ctx, j)
	return j, nil
}

func (r *JobRepo) indexUpsert(ctx context.Context, j *Job) {
	if r.index == nil || len(j.Embedding) == 0 {
		return
	}
	_ = r.index.Upsert(ctx, vectorstore.CollectionJobEmbedding, j.JobID, j.Embedding)
}

// SemanticSearch ranks agentID's jobs by embedding similarity to
// queryVec, the primitive behind "find jobs like X" lookups surfaced in
// chat tooling. When a vectorstore.Index is configured it resolves
// candidate ids first and hydrates rows by id; with no index configured
// it falls back to the SQL cosine scan directly.
func (r *JobRepo) SemanticSearch(ctx context.Context, agentID string, queryVec []float32, limit int, minSimilarity float64) ([]*Job, error) {
	if r.index != nil {
		matches, err := r.index.Search(ctx, vectorstore.CollectionJobEmbedding, queryVec, limit)
		if err == nil && len(matches) > 0 {
			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.ID
			}
			rows, err := r.db.GetByIDs(ctx, TableJobs, "id", ids)
			if err == nil {
				out := make([]*Job, 0, len(rows))
				for i, row := range rows {
					if row == nil || matches[i].Score < minSimilarity {
						continue
					}
					j := rowToJob(row)
					if j.AgentID == agentID {
						out = append(out, j)
					}
				}
				return out, nil
			}
		}
	}
	scored, err := r.db.SemanticSearch(ctx, TableJobs, "embedding", queryVec, store.Filters{"agent_id": agentID}, limit, minSimilarity)
	if err != nil {
		return nil, errs.Internal("job: semantic search failed", err)
	}
	out := make([]*Job, len(scored))
	for i, s := range scored {
		out[i] = rowToJob(s.Row)
	}
	return out, nil
}

// validateTriggerConfig enforces the per-job_type trigger_config
// shape: one_off requires run_at XOR nothing (runs immediately), scheduled
// requires cron, ongoing requires interval_seconds.
func validateTriggerConfig(jt JobType, tc TriggerConfig) error {
	switch jt {
	case JobScheduled:
		if tc.Cron == "" {
			return errs.Validation("job: scheduled jobs require trigger_config.cron")
		}
	case JobOngoing:
		if tc.IntervalSeconds <= 0 {
			return errs.Validation("job: ongoing jobs require trigger_config.interval_seconds > 0")
		}
	case JobOneOff:
		// run_at is optional; absent means "run as soon as claimed".
	default:
		return errs.Validation("job: unknown job_type " + string(jt))
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*Job, error) {
	row, err := r.db.GetOne(ctx, TableJobs, store.Filters{"id": jobID})
	if err != nil {
		return nil, errs.Internal("job: get failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("job")
	}
	return rowToJob(row), nil
}

// ForAgentUser lists jobs an agent/user pair created, newest first, the
// query behind GET /api/jobs.
func (r *JobRepo) ForAgentUser(ctx context.Context, agentID, userID string) ([]*Job, error) {
	filters := store.Filters{}
	if agentID != "" {
		filters["agent_id"] = agentID
	}
	if userID != "" {
		filters["user_id"] = userID
	}
	rows, err := r.db.Get(ctx, TableJobs, filters, store.QueryOpts{OrderBy: "created_at DESC", Limit: 200})
	if err != nil {
		return nil, errs.Internal("job: list failed", err)
	}
	out := make([]*Job, len(rows))
	for i, row := range rows {
		out[i] = rowToJob(row)
	}
	return out, nil
}

func (r *JobRepo) GetByInstance(ctx context.Context, instanceID string) (*Job, error) {
	row, err := r.db.GetOne(ctx, TableJobs, store.Filters{"instance_id": instanceID})
	if err != nil {
		return nil, errs.Internal("job: get by instance failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("job")
	}
	return rowToJob(row), nil
}

// DueForRun returns pending/active jobs whose next_run_time has passed.
// A nil next_run_time is never due: a one_off job
// created with unmet dependencies gets next_run_time=nil precisely so it
// stays un-claimable until DependencyResolver sets a real time; treating
// nil as "due immediately" would let JobEngine run a still-blocked job
// out of order.
func (r *JobRepo) DueForRun(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := r.db.Get(ctx, TableJobs, store.Filters{"status": []string{string(JobPending), string(JobActive)}}, store.QueryOpts{OrderBy: "next_run_time ASC", Limit: 200})
	if err != nil {
		return nil, errs.Internal("job: due-for-run scan failed", err)
	}
	var out []*Job
	for _, row := range rows {
		j := rowToJob(row)
		if j.NextRunTime != nil && !j.NextRunTime.After(now) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Claim atomically transitions jobID from pending/active to running and
// reports whether this worker won the race. A false result with a nil
// error means another worker claimed it first and the caller must abandon
// the job without side effects.
func (r *JobRepo) Claim(ctx context.Context, jobID string) (bool, error) {
	n, err := r.db.Update(ctx, TableJobs,
		store.Filters{"id": jobID, "status": []string{string(JobPending), string(JobActive)}},
		store.Row{"status": string(JobRunning), "updated_at": time.Now().UTC()},
	)
	if err != nil {
		return false, errs.Internal("job: claim failed", err)
	}
	return n > 0, nil
}

// Complete records a terminal or re-armed outcome for a run. For JobOngoing/JobScheduled jobs still under max_iterations,
// the caller passes the next JobStatus (JobPending) and a computed
// nextRunTime to re-arm the job instead of terminating it.
func (r *JobRepo) Complete(ctx context.Context, jobID string, status JobStatus, lastError string, nextRunTime *time.Time) error {
	data := store.Row{
		"status":        string(status),
		"last_run_time": time.Now().UTC(),
		"last_error":    lastError,
		"updated_at":    time.Now().UTC(),
	}
	if nextRunTime != nil {
		data["next_run_time"] = *nextRunTime
	}
	_, err := r.db.Update(ctx, TableJobs, store.Filters{"id": jobID}, data)
	if err != nil {
		return errs.Internal("job: complete failed", err)
	}
	return nil
}

// IncrementIteration bumps iteration_count, used by ongoing jobs to
// enforce trigger_config.max_iterations.
func (r *JobRepo) IncrementIteration(ctx context.Context, jobID string) (int, error) {
	j, err := r.Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	j.IterationCount++
	_, err = r.db.Update(ctx, TableJobs, store.Filters{"id": jobID}, store.Row{"iteration_count": j.IterationCount})
	if err != nil {
		return 0, errs.Internal("job: increment iteration failed", err)
	}
	return j.IterationCount, nil
}

// RecoverStuck resets jobs stuck in "running" whose last update is older
// than staleBefore (a worker crashed or hung mid-claim) back to
// "pending". JobEngine calls it once at startup with a cutoff of now
// (every running job is an orphan of a dead process) and on every poll
// cycle with now minus the job timeout. The comparison filter is outside
// Filters' equality-only vocabulary, so this goes through Execute.
func (r *JobRepo) RecoverStuck(ctx context.Context, staleBefore time.Time) (int64, error) {
	_, n, err := r.db.Execute(ctx,
		"UPDATE "+TableJobs+" SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?",
		[]any{string(JobPending), time.Now().UTC(), string(JobRunning), staleBefore},
	)
	if err != nil {
		return 0, errs.Internal("job: recover stuck failed", err)
	}
	return n, nil
}

// MonitoringJobsFor returns jobs whose monitored_job_ids includes jobID,
// used to notify a watcher job when a watched job completes.
func (r *JobRepo) MonitoringJobsFor(ctx context.Context, jobID string) ([]*Job, error) {
	rows, err := r.db.Get(ctx, TableJobs, store.Filters{}, store.QueryOpts{})
	if err != nil {
		return nil, errs.Internal("job: scan monitors failed", err)
	}
	var out []*Job
	for _, row := range rows {
		j := rowToJob(row)
		for _, id := range j.MonitoredJobIDs {
			if id == jobID {
				out = append(out, j)
				break
			}
		}
	}
	return out, nil
}

func jobToRow(j *Job) store.Row {
	var lastRun, nextRun any
	if j.LastRunTime != nil {
		lastRun = *j.LastRunTime
	}
	if j.NextRunTime != nil {
		nextRun = *j.NextRunTime
	}
	return store.Row{
		"id":                  j.JobID,
		"instance_id":         j.InstanceID,
		"agent_id":            j.AgentID,
		"user_id":             j.UserID,
		"job_type":            string(j.JobType),
		"title":               j.Title,
		"description":         j.Description,
		"payload":             j.Payload,
		"trigger_config":      encodeJSON(j.TriggerConfig),
		"status":              string(j.Status),
		"process":             encodeJSON(j.Process),
		"last_run_time":       lastRun,
		"next_run_time":       nextRun,
		"last_error":          j.LastError,
		"iteration_count":     j.IterationCount,
		"related_entity_id":   j.RelatedEntityID,
		"narrative_id":        j.NarrativeID,
		"monitored_job_ids":   encodeJSON(j.MonitoredJobIDs),
		"notification_method": string(j.NotificationMethod),
		"embedding":           encodeVector(j.Embedding),
		"created_at":          j.CreatedAt,
		"updated_at":          j.UpdatedAt,
	}
}

func rowToJob(row store.Row) *Job {
	j := &Job{
		JobID:              stringOr(row, "id"),
		InstanceID:         stringOr(row, "instance_id"),
		AgentID:            stringOr(row, "agent_id"),
		UserID:             stringOr(row, "user_id"),
		JobType:            JobType(stringOr(row, "job_type")),
		Title:              stringOr(row, "title"),
		Description:        stringOr(row, "description"),
		Payload:            stringOr(row, "payload"),
		Status:             JobStatus(stringOr(row, "status")),
		LastRunTime:        timePtrOr(row, "last_run_time"),
		NextRunTime:        timePtrOr(row, "next_run_time"),
		LastError:          stringOr(row, "last_error"),
		IterationCount:     intOr(row, "iteration_count"),
		RelatedEntityID:    stringOr(row, "related_entity_id"),
		NarrativeID:        stringOr(row, "narrative_id"),
		NotificationMethod: NotificationMethod(stringOr(row, "notification_method")),
		CreatedAt:          timeOr(row, "created_at"),
		UpdatedAt:          timeOr(row, "updated_at"),
		Embedding:          decodeVector(row, "embedding"),
	}
	decodeJSON(row, "trigger_config", &j.TriggerConfig)
	decodeJSON(row, "process", &j.Process)
	decodeJSON(row, "monitored_job_ids", &j.MonitoredJobIDs)
	return j
}
