package league

import "github.com/potatocaustic/real-karma-league/internal/domain/document"

const (
	GamesCollection           = "games"
	PostGamesCollection       = "post_games"
	ExhibitionGamesCollection = "exhibition_games"
)

func (l League) Seasons() string {
	return l.Collection("seasons")
}

// SeasonGames returns the path of a season-scoped game collection (games, post_games, exhibition_games).
func (l League) SeasonGames(seasonID, gameCollection string) string {
	return document.Path(l.Seasons(), seasonID, gameCollection)
}

// SeasonLineups returns the permanent lineup collection paired with a game collection.
func (l League) SeasonLineups(seasonID, gameCollection string) string {
	name := "lineups"
	switch gameCollection {
	case PostGamesCollection:
		name = "post_lineups"
	case ExhibitionGamesCollection:
		name = "exhibition_lineups"
	}
	return document.Path(l.Seasons(), seasonID, name)
}

func (l League) LiveGames() string         { return l.Collection("live_games") }
func (l League) PendingLiveGames() string  { return l.Collection("pending_live_games") }
func (l League) LiveScoringStatus() string { return l.Collection("live_scoring_status") }
func (l League) GameFlow() string          { return l.Collection("game_flow") }
func (l League) DailyLeaderboards() string { return l.Collection("daily_leaderboards") }
func (l League) UsageStats() string        { return l.Collection("usage_stats") }
func (l League) Teams() string             { return l.Collection("v2_teams") }
func (l League) Players() string           { return l.Collection("v2_players") }
func (l League) DraftPicks() string        { return l.Collection("draftPicks") }

func (l League) TeamSeasonalRecords(teamID string) string {
	return document.Path(l.Teams(), teamID, "seasonal_records")
}

func (l League) PlayerSeasonalStats(playerID string) string {
	return document.Path(l.Players(), playerID, "seasonal_stats")
}

const (
	RelegationRecordsCollection = "relegation_records"
	PromotionHistoryCollection  = "promotion_history"
	UsersCollection             = "users"
	JobRunsCollection           = "job_runs"
)
