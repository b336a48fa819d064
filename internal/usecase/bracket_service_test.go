package usecase

import (
	"testing"

	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/memory"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

func postGamesPath() string {
	return league.Major.SeasonGames(memory.SeedSeasonID, league.PostGamesCollection)
}

func seedPlayIn(t *testing.T, store *memory.DocumentStore) {
	t.Helper()
	path := postGamesPath()
	mustPut(t, store, path, "W7vW8-1", game.Game{
		ID: "W7vW8-1", SeriesID: "W7vW8", Date: "2026-03-02",
		Team1ID: "T1", Team1Seed: "7", Team2ID: "T2", Team2Seed: "8",
		Team1Score: 80, Team2Score: 95, Completed: true, WinnerTeamID: "T2",
	})
	mustPut(t, store, path, "W2vW7-1", game.Game{ID: "W2vW7-1", SeriesID: "W2vW7", Date: "2026-03-05", Team1ID: "T3", Team1Seed: "2", Team2ID: "TBD"})
	mustPut(t, store, path, "W2vW7-2", game.Game{ID: "W2vW7-2", SeriesID: "W2vW7", Date: "2026-03-06", Team1ID: "T3", Team1Seed: "2", Team2ID: "TBD"})
	mustPut(t, store, path, "W8thSeedGame-1", game.Game{ID: "W8thSeedGame-1", SeriesID: "W8thSeedGame", Date: "2026-03-04", Team1ID: "TBD", Team2ID: "TBD"})
}

func TestBracketService_PlayInRoutesWinnerAndLoser(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	seedPlayIn(t, store)
	svc := NewBracketService(store, testBracketTable(t), logging.NewNop())

	result, err := svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{SeasonID: memory.SeedSeasonID})
	if err != nil {
		t.Fatalf("trigger update: %v", err)
	}
	if result.Commits != 1 || result.SlotUpdates != 3 || result.Pruned != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Advanced) != 1 || result.Advanced[0] != "W7vW8" {
		t.Fatalf("unexpected advanced series: %v", result.Advanced)
	}

	for _, id := range []string{"W2vW7-1", "W2vW7-2"} {
		got := mustGet[game.Game](t, store, postGamesPath(), id)
		if got.Team2ID != "T2" || got.Team2Seed != "7" || got.Round != "Round 1" {
			t.Fatalf("winner slot %s not filled with seed override: %+v", id, got)
		}
		if got.Team1ID != "T3" || got.Team1Seed != "2" {
			t.Fatalf("other slot of %s changed: %+v", id, got)
		}
	}
	loserSlot := mustGet[game.Game](t, store, postGamesPath(), "W8thSeedGame-1")
	if loserSlot.Team1ID != "T1" || loserSlot.Team1Seed != "7" || loserSlot.Round != "Play-In" {
		t.Fatalf("loser slot not filled with carried seed: %+v", loserSlot)
	}
}

func TestBracketService_RerunIsNoop(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	seedPlayIn(t, store)
	svc := NewBracketService(store, testBracketTable(t), logging.NewNop())

	if _, err := svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{SeasonID: memory.SeedSeasonID}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	before := store.Stats()

	result, err := svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{SeasonID: memory.SeedSeasonID})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if result.Commits != 0 || result.SlotUpdates != 0 || len(result.Advanced) != 0 {
		t.Fatalf("expected no-op rerun, got %+v", result)
	}
	if after := store.Stats(); after != before {
		t.Fatalf("rerun wrote to the store: before=%+v after=%+v", before, after)
	}
}

func TestBracketService_SeriesPrunesUnplayedGames(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	path := postGamesPath()
	for id, date := range map[string]string{"W1vW8-1": "2026-03-05", "W1vW8-2": "2026-03-06"} {
		mustPut(t, store, path, id, game.Game{
			ID: id, SeriesID: "W1vW8", Date: date,
			Team1ID: "T1", Team1Seed: "1", Team2ID: "T4", Team2Seed: "8",
			Completed: true, WinnerTeamID: "T1", SeriesWinner: "T1",
		})
	}
	mustPut(t, store, path, "W1vW8-3", game.Game{ID: "W1vW8-3", SeriesID: "W1vW8", Date: "2026-03-07", Team1ID: "T1", Team2ID: "T4"})
	mustPut(t, store, path, "W1vW4-1", game.Game{ID: "W1vW4-1", SeriesID: "W1vW4", Date: "2026-03-10", Team1ID: "TBD", Team2ID: "TBD"})

	svc := NewBracketService(store, testBracketTable(t), logging.NewNop())
	result, err := svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{SeasonID: memory.SeedSeasonID})
	if err != nil {
		t.Fatalf("trigger update: %v", err)
	}
	if result.Processed != 2 || result.Commits != 1 || result.Pruned != 1 || result.SlotUpdates != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	mustNotExist(t, store, path, "W1vW8-3")
	next := mustGet[game.Game](t, store, path, "W1vW4-1")
	if next.Team1ID != "T1" || next.Team1Seed != "1" || next.Round != "Conference Semifinals" {
		t.Fatalf("unexpected downstream slot: %+v", next)
	}
}

func TestBracketService_UndecidedSeriesWritesNothing(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	path := postGamesPath()
	mustPut(t, store, path, "W1vW8-1", game.Game{
		ID: "W1vW8-1", SeriesID: "W1vW8", Date: "2026-03-05",
		Team1ID: "T1", Team2ID: "T4", Completed: true, WinnerTeamID: "T1",
	})
	mustPut(t, store, path, "W1vW8-2", game.Game{ID: "W1vW8-2", SeriesID: "W1vW8", Date: "2026-03-06", Team1ID: "T1", Team2ID: "T4"})

	svc := NewBracketService(store, testBracketTable(t), logging.NewNop())
	result, err := svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{SeasonID: memory.SeedSeasonID})
	if err != nil {
		t.Fatalf("trigger update: %v", err)
	}
	if result.Processed != 1 || result.Commits != 0 {
		t.Fatalf("expected undecided series to be skipped, got %+v", result)
	}
	mustGet[game.Game](t, store, path, "W1vW8-2")
	if store.Stats().Commits != 0 {
		t.Fatalf("expected no commits, got %d", store.Stats().Commits)
	}
}

func TestBracketService_DateFilter(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	seedPlayIn(t, store)
	svc := NewBracketService(store, testBracketTable(t), logging.NewNop())

	result, err := svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{Date: "2026-03-03"})
	if err != nil {
		t.Fatalf("trigger update: %v", err)
	}
	if result.SeasonID != memory.SeedSeasonID || result.Processed != 0 || result.Commits != 0 {
		t.Fatalf("expected nothing on a day without games, got %+v", result)
	}

	result, err = svc.TriggerUpdate(t.Context(), league.Major, TriggerBracketInput{Date: "2026-03-02"})
	if err != nil {
		t.Fatalf("trigger update: %v", err)
	}
	if result.Commits != 1 {
		t.Fatalf("expected the play-in to advance, got %+v", result)
	}
}
