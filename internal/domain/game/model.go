package game

import "time"

// CaptainMultiplier applies to the adjusted score of a lineup's captain.
const CaptainMultiplier = 1.5

const GameTypeRelegation = "relegation"

type LineupEntry struct {
	PlayerID      string  `json:"player_id"`
	PlayerHandle  string  `json:"player_handle"`
	TeamID        string  `json:"team_id"`
	IsCaptain     bool    `json:"is_captain"`
	Deductions    float64 `json:"deductions"`
	RawScore      float64 `json:"raw_score"`
	AdjustedScore float64 `json:"adjusted_score"`
	FinalScore    float64 `json:"final_score"`
	GlobalRank    int     `json:"global_rank"`
}

// ApplyScore records a fetched score and recomputes the derived fields.
func (e *LineupEntry) ApplyScore(raw float64, rank int) {
	e.RawScore = raw
	e.GlobalRank = rank
	e.AdjustedScore = raw - e.Deductions
	e.FinalScore = FinalScore(raw, e.Deductions, e.IsCaptain)
}

func FinalScore(raw, deductions float64, captain bool) float64 {
	adjusted := raw - deductions
	if captain {
		return adjusted * CaptainMultiplier
	}
	return adjusted
}

func LineupTotal(entries []LineupEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.FinalScore
	}
	return total
}

// Winner returns the team with the higher total, or "" on an exact tie.
func Winner(team1ID, team2ID string, team1Total, team2Total float64) string {
	switch {
	case team1Total > team2Total:
		return team1ID
	case team2Total > team1Total:
		return team2ID
	default:
		return ""
	}
}

type Game struct {
	ID           string     `json:"id"`
	Team1ID      string     `json:"team1_id"`
	Team2ID      string     `json:"team2_id"`
	Team1Seed    string     `json:"team1_seed,omitempty"`
	Team2Seed    string     `json:"team2_seed,omitempty"`
	Team1Score   float64    `json:"team1_score"`
	Team2Score   float64    `json:"team2_score"`
	Date         string     `json:"date"`
	Week         string     `json:"week,omitempty"`
	Round        string     `json:"round,omitempty"`
	Completed    bool       `json:"completed"`
	WinnerTeamID string     `json:"winner_team_id"`
	SeriesID     string     `json:"series_id,omitempty"`
	SeriesWinner string     `json:"series_winner,omitempty"`
	GameType     string     `json:"game_type,omitempty"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

func (g Game) Opponent(teamID string) string {
	switch teamID {
	case g.Team1ID:
		return g.Team2ID
	case g.Team2ID:
		return g.Team1ID
	default:
		return ""
	}
}

func (g Game) SeedOf(teamID string) string {
	switch teamID {
	case g.Team1ID:
		return g.Team1Seed
	case g.Team2ID:
		return g.Team2Seed
	default:
		return ""
	}
}

// ScoreOf returns the final score credited to teamID.
func (g Game) ScoreOf(teamID string) float64 {
	if teamID == g.Team2ID {
		return g.Team2Score
	}
	return g.Team1Score
}

// PendingGame is a lineup submission waiting for activation.
type PendingGame struct {
	GameID         string        `json:"game_id"`
	SeasonID       string        `json:"season_id,omitempty"`
	CollectionName string        `json:"collection_name,omitempty"`
	Team1Lineup    []LineupEntry `json:"team1_lineup"`
	Team2Lineup    []LineupEntry `json:"team2_lineup"`
	SubmittedAt    *time.Time    `json:"submitted_at,omitempty"`
}

const FinalizeStatusFailed = "failed"

// LiveGame is the transient record of a game being actively scored.
type LiveGame struct {
	GameID           string        `json:"game_id"`
	League           string        `json:"league"`
	SeasonID         string        `json:"season_id"`
	CollectionName   string        `json:"collection_name"`
	Date             string        `json:"date"`
	GameType         string        `json:"game_type,omitempty"`
	SeriesID         string        `json:"series_id,omitempty"`
	Team1ID          string        `json:"team1_id"`
	Team2ID          string        `json:"team2_id"`
	Team1Lineup      []LineupEntry `json:"team1_lineup"`
	Team2Lineup      []LineupEntry `json:"team2_lineup"`
	ActivatedAt      time.Time     `json:"activated_at"`
	LastUpdated      *time.Time    `json:"last_updated,omitempty"`
	FinalizeStatus   string        `json:"finalize_status,omitempty"`
	FinalizeError    string        `json:"finalize_error,omitempty"`
	FinalizeFailedAt *time.Time    `json:"finalize_failed_at,omitempty"`
}

// Players lists both lineups, team1 first.
func (g LiveGame) Players() []LineupEntry {
	out := make([]LineupEntry, 0, len(g.Team1Lineup)+len(g.Team2Lineup))
	out = append(out, g.Team1Lineup...)
	out = append(out, g.Team2Lineup...)
	return out
}

func (g LiveGame) Totals() (float64, float64) {
	return LineupTotal(g.Team1Lineup), LineupTotal(g.Team2Lineup)
}

func LineupDocID(gameID, playerID string) string {
	return gameID + "-" + playerID
}

// FinalLineup is the permanent per-player record written at finalization.
type FinalLineup struct {
	LineupEntry
	GameID      string    `json:"game_id"`
	SeasonID    string    `json:"season_id"`
	Date        string    `json:"date"`
	Won         bool      `json:"won"`
	FinalizedAt time.Time `json:"finalized_at"`
}
