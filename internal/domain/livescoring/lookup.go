package livescoring

import "context"

// PlayerScore is a player's raw score delta and global rank for one game date.
type PlayerScore struct {
	RawScoreDelta float64
	RankToday     int
}

// ScoreLookup fetches live scores from the external scoring service.
type ScoreLookup interface {
	LookupScore(ctx context.Context, playerID, gameDate string) (PlayerScore, error)
}
