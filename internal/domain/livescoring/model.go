package livescoring

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// StatusDocID is the singleton document id inside a league's status collection.
const StatusDocID = "status"

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusPaused, StatusStopped:
		return s, nil
	default:
		return "", fmt.Errorf("unknown scoring status %q", raw)
	}
}

type SampleResult struct {
	PlayerID string  `json:"player_id"`
	OldScore float64 `json:"old_score"`
	NewScore float64 `json:"new_score"`
	OldRank  int     `json:"old_rank"`
	NewRank  int     `json:"new_rank"`
	Changed  bool    `json:"changed"`
	Failed   bool    `json:"failed,omitempty"`
}

type ScoringStatus struct {
	Status                  Status         `json:"status"`
	IntervalMinutes         int            `json:"interval_minutes"`
	ActiveGameDate          string         `json:"active_game_date,omitempty"`
	LastSampleCompletedAt   *time.Time     `json:"last_sample_completed_at,omitempty"`
	LastFullUpdateCompleted *time.Time     `json:"last_full_update_completed,omitempty"`
	LastSampleResults       []SampleResult `json:"last_sample_results,omitempty"`
	LastSampleTriggered     bool           `json:"last_sample_triggered"`
	UpdatedAt               *time.Time     `json:"updated_at,omitempty"`
	UpdatedBy               string         `json:"updated_by,omitempty"`
}

// SampleDue reports whether a sampler tick at now should probe scores.
func (s ScoringStatus) SampleDue(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	if s.LastSampleCompletedAt == nil {
		return true
	}
	interval := time.Duration(s.IntervalMinutes) * time.Minute
	return !now.Before(s.LastSampleCompletedAt.Add(interval))
}

// Usage counter fields on the per-date usage document.
const (
	UsageSampleRequests     = "score_requests_sample"
	UsageFullUpdateRequests = "score_requests_full_update"
	UsageFinalizeRequests   = "score_requests_finalize"
)
