package relegation

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusMatchupSet Status = "matchup_set"
	StatusScheduled  Status = "scheduled"
	StatusCompleted  Status = "completed"
	StatusExecuted   Status = "executed"
	StatusNoChange   Status = "no_change"
)

// ExecutionStep is the resumable cursor of a promotion run.
type ExecutionStep string

const (
	StepNone         ExecutionStep = ""
	StepTeamsCopied  ExecutionStep = "teams_copied"
	StepPlayersMoved ExecutionStep = "players_moved"
	StepPicksSwapped ExecutionStep = "picks_swapped"
	StepDone         ExecutionStep = "done"
)

var stepOrder = map[ExecutionStep]int{
	StepNone:         0,
	StepTeamsCopied:  1,
	StepPlayersMoved: 2,
	StepPicksSwapped: 3,
	StepDone:         4,
}

// Reached reports whether the cursor is at or past target.
func (s ExecutionStep) Reached(target ExecutionStep) bool {
	return stepOrder[s] >= stepOrder[target]
}

const (
	WinnerLeagueMajor = "major"
	WinnerLeagueMinor = "minor"
)

// Provenance tags written on copied team and player documents.
const (
	ProvenancePromoted      = "promoted_from_minor"
	ProvenanceRelegated     = "relegated_from_major"
	PlayerStatusTransferred = "transferred"
)

type TeamRef struct {
	TeamID    string  `json:"team_id"`
	TeamName  string  `json:"team_name,omitempty"`
	SortScore float64 `json:"sortscore"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
}

type GameRef struct {
	SeasonID   string `json:"season_id"`
	Collection string `json:"collection"`
	GameID     string `json:"game_id"`
}

type Record struct {
	SeasonID          string        `json:"season_id"`
	MinorSeasonID     string        `json:"minor_season_id"`
	SeasonNumber      int           `json:"season_number,omitempty"`
	Status            Status        `json:"status"`
	MajorTeam         *TeamRef      `json:"major_team,omitempty"`
	MinorChampion     *TeamRef      `json:"minor_champion,omitempty"`
	GameRef           *GameRef      `json:"game_ref,omitempty"`
	GameDate          string        `json:"game_date,omitempty"`
	WinnerLeague      string        `json:"winner_league,omitempty"`
	WinnerTeamID      string        `json:"winner_team_id,omitempty"`
	PromotionRequired bool          `json:"promotion_required"`
	DetectedAt        *time.Time    `json:"detected_at,omitempty"`
	ScheduledAt       *time.Time    `json:"scheduled_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	ExecutedAt        *time.Time    `json:"executed_at,omitempty"`
	ExecutedBy        string        `json:"executed_by,omitempty"`
	ExecutionStep     ExecutionStep `json:"execution_step,omitempty"`
	PlayersPromoted   []string      `json:"players_promoted,omitempty"`
	PlayersRelegated  []string      `json:"players_relegated,omitempty"`
	PicksToMajor      []string      `json:"picks_to_major,omitempty"`
	PicksToMinor      []string      `json:"picks_to_minor,omitempty"`
	HistoryID         string        `json:"history_id,omitempty"`
	UpdatedAt         *time.Time    `json:"updated_at,omitempty"`
}

// Decided reports whether matchup detection already ran for the season.
func (r Record) Decided() bool {
	return r.Status != "" && r.Status != StatusPending
}

// PromotionHistory is the immutable audit entry of an executed promotion.
type PromotionHistory struct {
	ID               string    `json:"id"`
	SeasonID         string    `json:"season_id"`
	PromotedTeamID   string    `json:"promoted_team_id"`
	RelegatedTeamID  string    `json:"relegated_team_id"`
	PlayersPromoted  []string  `json:"players_promoted"`
	PlayersRelegated []string  `json:"players_relegated"`
	PicksToMajor     []string  `json:"picks_to_major"`
	PicksToMinor     []string  `json:"picks_to_minor"`
	ExecutedAt       time.Time `json:"executed_at"`
	ExecutedBy       string    `json:"executed_by"`
}
