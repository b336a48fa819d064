package memory

import (
	"fmt"

	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/domain/user"
)

const (
	SeedSeasonID     = "S9"
	SeedGameDate     = "2026-03-01"
	SeedGameID       = "G1"
	SeedAdminUserID  = "admin-1"
	SeedScorerUserID = "scorer-1"
)

type seedTeam struct {
	id        string
	name      string
	sortScore float64
	wins      int
	losses    int
}

var (
	seedMajorTeams = []seedTeam{
		{"T1", "Aces", 12.5, 14, 6},
		{"T2", "Bandits", 3.25, 11, 9},
		{"T3", "Comets", -5, 6, 14},
		{"T4", "Drifters", 1.75, 9, 11},
	}
	seedMinorTeams = []seedTeam{
		{"M1", "Mavericks", 9, 15, 5},
		{"M2", "Nomads", -2, 7, 13},
	}
)

// Seed loads a small two-league season into store: teams with season records
// and rosters, one scheduled game with a pending lineup submission, and two
// users with roles. It backs the memory store in local runs.
func Seed(store *DocumentStore) error {
	put := func(collection, id string, v any) error {
		if err := store.Put(collection, id, v); err != nil {
			return fmt.Errorf("seed %s/%s: %w", collection, id, err)
		}
		return nil
	}

	for _, l := range league.All() {
		if err := put(l.Seasons(), SeedSeasonID, league.Season{
			SeasonNumber: 9,
			Status:       league.SeasonStatusActive,
			CurrentWeek:  "Week 10",
		}); err != nil {
			return err
		}
	}

	for l, teams := range map[league.League][]seedTeam{league.Major: seedMajorTeams, league.Minor: seedMinorTeams} {
		for _, t := range teams {
			if err := put(l.Teams(), t.id, roster.Team{ID: t.id, TeamName: t.name}); err != nil {
				return err
			}
			if err := put(l.TeamSeasonalRecords(t.id), SeedSeasonID, roster.TeamSeasonRecord{
				TeamName:  t.name,
				Wins:      t.wins,
				Losses:    t.losses,
				SortScore: t.sortScore,
			}); err != nil {
				return err
			}
			for i := 1; i <= 3; i++ {
				playerID := fmt.Sprintf("%s-P%d", t.id, i)
				if err := put(l.Players(), playerID, roster.Player{
					ID:            playerID,
					PlayerHandle:  fmt.Sprintf("%s_player%d", t.name, i),
					CurrentTeamID: t.id,
					PlayerStatus:  "ACTIVE",
				}); err != nil {
					return err
				}
			}
			if err := put(l.DraftPicks(), t.id+"-S10-R1", roster.DraftPick{
				ID:           t.id + "-S10-R1",
				Season:       10,
				Round:        1,
				OriginalTeam: t.id,
				CurrentOwner: t.id,
			}); err != nil {
				return err
			}
		}
	}

	if err := put(league.Major.SeasonGames(SeedSeasonID, league.GamesCollection), SeedGameID, game.Game{
		ID:      SeedGameID,
		Team1ID: "T1",
		Team2ID: "T2",
		Date:    SeedGameDate,
		Week:    "10",
	}); err != nil {
		return err
	}
	if err := put(league.Major.PendingLiveGames(), SeedGameID, game.PendingGame{
		GameID:         SeedGameID,
		SeasonID:       SeedSeasonID,
		CollectionName: league.GamesCollection,
		Team1Lineup:    seedLineup("T1", "Aces"),
		Team2Lineup:    seedLineup("T2", "Bandits"),
	}); err != nil {
		return err
	}

	if err := put(league.UsersCollection, SeedAdminUserID, user.Roles{Role: user.RoleAdmin}); err != nil {
		return err
	}
	return put(league.UsersCollection, SeedScorerUserID, user.Roles{
		Leagues: map[string]user.Role{string(league.Major): user.RoleScorekeeper},
	})
}

func seedLineup(teamID, teamName string) []game.LineupEntry {
	out := make([]game.LineupEntry, 0, 3)
	for i := 1; i <= 3; i++ {
		out = append(out, game.LineupEntry{
			PlayerID:     fmt.Sprintf("%s-P%d", teamID, i),
			PlayerHandle: fmt.Sprintf("%s_player%d", teamName, i),
			TeamID:       teamID,
			IsCaptain:    i == 1,
		})
	}
	return out
}
