package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/jobscheduler"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
)

// JobRunRepository keeps the job_runs audit trail. Transitions of the same run
// merge into one document so sent/completed/failed timestamps accumulate.
type JobRunRepository struct {
	store document.Store
}

func NewJobRunRepository(store document.Store) *JobRunRepository {
	return &JobRunRepository{store: store}
}

func (r *JobRunRepository) UpsertEvent(ctx context.Context, event jobscheduler.RunEvent) error {
	runID := strings.TrimSpace(event.RunID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	jobName := strings.TrimSpace(event.JobName)
	if jobName == "" {
		jobName = "unknown"
	}
	occurredAt := event.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	current, exists, err := document.GetAs[jobscheduler.Run](ctx, r.store, league.JobRunsCollection, runID)
	if err != nil {
		return fmt.Errorf("load job run run_id=%s: %w", runID, err)
	}
	if !exists {
		current = jobscheduler.Run{RunID: runID}
	}

	current.JobName = jobName
	current.League = firstNonEmpty(event.League, current.League)
	current.Trigger = firstNonEmpty(event.Trigger, current.Trigger)
	current.Status = event.Status
	current.TraceID = firstNonEmpty(event.TraceID, current.TraceID)
	current.SpanID = firstNonEmpty(event.SpanID, current.SpanID)
	if len(event.Summary) > 0 {
		current.Summary = event.Summary
	}

	switch event.Status {
	case jobscheduler.StatusSent:
		current.SentAt = &occurredAt
	case jobscheduler.StatusStarted:
		current.StartedAt = &occurredAt
		current.LastError = ""
	case jobscheduler.StatusCompleted, jobscheduler.StatusSkipped:
		current.CompletedAt = &occurredAt
		current.FailedAt = nil
		current.LastError = ""
	case jobscheduler.StatusFailed:
		current.FailedAt = &occurredAt
		current.LastError = event.ErrorMessage
	}

	batch := document.NewBatch(r.store.MaxBatchOps())
	if err := batch.Set(league.JobRunsCollection, runID, current); err != nil {
		return err
	}
	if err := r.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("upsert job run run_id=%s status=%s: %w", runID, event.Status, err)
	}
	return nil
}

// ListRecent returns the newest runs of a job, newest first.
func (r *JobRunRepository) ListRecent(ctx context.Context, jobName string, limit int) ([]jobscheduler.Run, error) {
	var filters []document.Filter
	if jobName != "" {
		filters = append(filters, document.Where("job_name", jobName))
	}
	rows, err := document.QueryAs[jobscheduler.Run](ctx, r.store, league.JobRunsCollection, filters...)
	if err != nil {
		return nil, fmt.Errorf("list job runs job=%s: %w", jobName, err)
	}

	out := make([]jobscheduler.Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Value)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return runTime(out[i]).After(runTime(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func runTime(run jobscheduler.Run) time.Time {
	for _, t := range []*time.Time{run.FailedAt, run.CompletedAt, run.StartedAt, run.SentAt} {
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
