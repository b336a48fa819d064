package jobscheduler

import "time"

type RunStatus string

const (
	StatusSent      RunStatus = "sent"
	StatusStarted   RunStatus = "started"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusSkipped   RunStatus = "skipped"
)

// Job names shared by the in-process scheduler, the internal HTTP triggers
// and the job_runs audit trail.
const (
	JobSample          = "live-scoring-sample"
	JobAutoStart       = "live-scoring-auto-start"
	JobAutoStop        = "live-scoring-auto-stop"
	JobAutoFinalize    = "auto-finalize"
	JobDailyRollover   = "daily-rollover"
	JobRelegationGame  = "relegation-game-completed"
	JobBracketAdvance  = "bracket-advance"
	JobForceFullUpdate = "force-full-update"
)

// RunEvent is one transition of a job run, keyed by RunID.
type RunEvent struct {
	RunID        string
	JobName      string
	League       string
	Trigger      string
	Status       RunStatus
	Summary      map[string]any
	ErrorMessage string
	OccurredAt   time.Time
	TraceID      string
	SpanID       string
}

// Run is the stored shape of a job_runs document.
type Run struct {
	RunID       string         `json:"run_id"`
	JobName     string         `json:"job_name"`
	League      string         `json:"league"`
	Trigger     string         `json:"trigger"`
	Status      RunStatus      `json:"status"`
	Summary     map[string]any `json:"summary,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
	SpanID      string         `json:"span_id,omitempty"`
}
