package livescoring

import (
	"math"
	"sort"
	"time"

	"github.com/potatocaustic/real-karma-league/internal/domain/game"
)

type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	PlayerID        string  `json:"player_id"`
	PlayerHandle    string  `json:"player_handle"`
	TeamID          string  `json:"team_id"`
	TeamName        string  `json:"team_name"`
	GameID          string  `json:"game_id"`
	AdjustedScore   float64 `json:"adjusted_score"`
	FinalScore      float64 `json:"final_score"`
	GlobalRank      int     `json:"global_rank"`
	PercentVsMedian float64 `json:"pct_vs_median"`
}

type DailyLeaderboard struct {
	Date      string             `json:"date"`
	Median    float64            `json:"median"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// BuildLeaderboard ranks every live player once. When a player appears in several
// games, the first occurrence in games order wins.
func BuildLeaderboard(date string, games []game.LiveGame, teamNames map[string]string, now time.Time) DailyLeaderboard {
	seen := make(map[string]struct{})
	entries := make([]LeaderboardEntry, 0)
	for _, g := range games {
		for _, p := range g.Players() {
			if p.PlayerID == "" {
				continue
			}
			if _, ok := seen[p.PlayerID]; ok {
				continue
			}
			seen[p.PlayerID] = struct{}{}
			name := teamNames[p.TeamID]
			if name == "" {
				name = p.TeamID
			}
			entries = append(entries, LeaderboardEntry{
				PlayerID:      p.PlayerID,
				PlayerHandle:  p.PlayerHandle,
				TeamID:        p.TeamID,
				TeamName:      name,
				GameID:        g.GameID,
				AdjustedScore: p.AdjustedScore,
				FinalScore:    p.FinalScore,
				GlobalRank:    p.GlobalRank,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AdjustedScore > entries[j].AdjustedScore
	})

	scores := make([]float64, len(entries))
	for i := range entries {
		scores[i] = entries[i].AdjustedScore
	}
	median := Median(scores)
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].PercentVsMedian = percentVsMedian(entries[i].AdjustedScore, median)
	}

	return DailyLeaderboard{
		Date:      date,
		Median:    median,
		Entries:   entries,
		UpdatedAt: now,
	}
}

func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func percentVsMedian(score, median float64) float64 {
	if median == 0 {
		return 0
	}
	pct := (score - median) / math.Abs(median) * 100
	return math.Round(pct*100) / 100
}
