package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/relegation"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/memory"
	"github.com/potatocaustic/real-karma-league/internal/platform/id"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

func newTestRelegation(t *testing.T, store *memory.DocumentStore, batchSize int) *RelegationService {
	t.Helper()
	svc := NewRelegationService(store, &id.Sequence{Prefix: "promo"}, RelegationConfig{PromotionBatchSize: batchSize}, logging.NewNop())
	svc.now = fixedClock
	return svc
}

func completeSeasons(t *testing.T, store *memory.DocumentStore) {
	t.Helper()
	for _, l := range league.All() {
		mustPut(t, store, l.Seasons(), memory.SeedSeasonID, league.Season{
			SeasonNumber: 9,
			Status:       league.SeasonStatusActive,
			CurrentWeek:  league.WeekSeasonComplete,
		})
	}
}

func putMinorFinals(t *testing.T, store *memory.DocumentStore, seriesWinner string) {
	t.Helper()
	mustPut(t, store, league.Minor.SeasonGames(memory.SeedSeasonID, league.PostGamesCollection), "Finals-1", game.Game{
		ID: "Finals-1", SeriesID: "Finals", Date: "2026-03-20",
		Team1ID: "M1", Team2ID: "M2", Completed: seriesWinner != "",
		WinnerTeamID: seriesWinner, SeriesWinner: seriesWinner,
	})
}

// decidedSeason prepares a store whose relegation game was won by winner.
func decidedSeason(t *testing.T, winner string) (*memory.DocumentStore, *RelegationService) {
	t.Helper()

	store := newSeededStore(t)
	completeSeasons(t, store)
	putMinorFinals(t, store, "M1")
	svc := newTestRelegation(t, store, 4)

	if _, err := svc.DetectMatchup(t.Context()); err != nil {
		t.Fatalf("detect matchup: %v", err)
	}
	if _, err := svc.ScheduleGame(t.Context(), memory.SeedSeasonID, ScheduleRelegationInput{Date: "2026-04-01"}); err != nil {
		t.Fatalf("schedule game: %v", err)
	}

	gameID := RelegationGameID(memory.SeedSeasonID)
	path := league.Major.SeasonGames(memory.SeedSeasonID, league.ExhibitionGamesCollection)
	played := mustGet[game.Game](t, store, path, gameID)
	played.Completed = true
	played.Team1Score, played.Team2Score = 120, 150
	if winner == "T3" {
		played.Team1Score, played.Team2Score = 150, 120
	}
	played.WinnerTeamID = winner
	mustPut(t, store, path, gameID, played)

	if err := svc.HandleGameCompleted(t.Context(), GameCompletedEvent{SeasonID: memory.SeedSeasonID, GameID: gameID}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	return store, svc
}

func TestRelegationService_DetectMatchup(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	svc := newTestRelegation(t, store, 0)

	if _, err := svc.DetectMatchup(t.Context()); !errors.Is(err, ErrFailedPrecondition) || !IsExpectedRelegationSkip(err) {
		t.Fatalf("expected incomplete seasons to be skipped, got %v", err)
	}

	completeSeasons(t, store)
	putMinorFinals(t, store, "M1")

	record, err := svc.DetectMatchup(t.Context())
	if err != nil {
		t.Fatalf("detect matchup: %v", err)
	}
	if record.Status != relegation.StatusMatchupSet {
		t.Fatalf("unexpected status: %s", record.Status)
	}
	if record.MajorTeam == nil || record.MajorTeam.TeamID != "T3" || record.MajorTeam.SortScore != -5 {
		t.Fatalf("unexpected major team: %+v", record.MajorTeam)
	}
	if record.MinorChampion == nil || record.MinorChampion.TeamID != "M1" || record.MinorChampion.TeamName != "Mavericks" {
		t.Fatalf("unexpected minor champion: %+v", record.MinorChampion)
	}
	if record.SeasonNumber != 9 {
		t.Fatalf("expected season number 9 on the record, got %d", record.SeasonNumber)
	}

	commits := store.Stats().Commits
	again, err := svc.DetectMatchup(t.Context())
	if err != nil {
		t.Fatalf("repeat detect: %v", err)
	}
	if again.Status != relegation.StatusMatchupSet || store.Stats().Commits != commits {
		t.Fatalf("repeat detect should return the stored record without writing, got %+v", again)
	}
}

func TestRelegationService_DetectMatchupRejectsTiedWorstRecord(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	completeSeasons(t, store)
	putMinorFinals(t, store, "M1")
	mustPut(t, store, league.Major.TeamSeasonalRecords("T4"), memory.SeedSeasonID, roster.TeamSeasonRecord{
		TeamName: "Drifters", Wins: 6, Losses: 14, SortScore: -5,
	})
	svc := newTestRelegation(t, store, 0)

	_, err := svc.DetectMatchup(t.Context())
	if !errors.Is(err, ErrRelegationTie) || !errors.Is(err, ErrFailedPrecondition) {
		t.Fatalf("expected a tie precondition failure, got %v", err)
	}
	if IsExpectedRelegationSkip(err) {
		t.Fatalf("a tie must not be treated as a routine skip")
	}
	mustNotExist(t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
}

func TestRelegationService_DetectMatchupWithoutFinals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		finals     bool
		wantStatus relegation.Status
		wantErr    error
	}{
		{name: "no finals played", finals: false, wantStatus: relegation.StatusNoChange},
		{name: "finals undecided", finals: true, wantErr: ErrFailedPrecondition},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newSeededStore(t)
			completeSeasons(t, store)
			if tc.finals {
				putMinorFinals(t, store, "")
			}
			svc := newTestRelegation(t, store, 0)

			record, err := svc.DetectMatchup(t.Context())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				mustNotExist(t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
				return
			}
			if err != nil {
				t.Fatalf("detect matchup: %v", err)
			}
			if record.Status != tc.wantStatus || record.MajorTeam != nil {
				t.Fatalf("unexpected record: %+v", record)
			}
		})
	}
}

func TestRelegationService_ScheduleAndRecordOutcome(t *testing.T) {
	t.Parallel()

	store, svc := decidedSeason(t, "M1")

	scheduled := mustGet[game.Game](t, store, league.Major.SeasonGames(memory.SeedSeasonID, league.ExhibitionGamesCollection), RelegationGameID(memory.SeedSeasonID))
	if scheduled.Team1ID != "T3" || scheduled.Team2ID != "M1" || scheduled.GameType != game.GameTypeRelegation || scheduled.Date != "2026-04-01" {
		t.Fatalf("unexpected relegation game: %+v", scheduled)
	}

	record, err := svc.GetRecord(t.Context(), memory.SeedSeasonID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != relegation.StatusCompleted || record.WinnerLeague != relegation.WinnerLeagueMinor || !record.PromotionRequired {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.GameRef == nil || record.GameRef.Collection != league.ExhibitionGamesCollection {
		t.Fatalf("unexpected game ref: %+v", record.GameRef)
	}

	if _, err := svc.ScheduleGame(t.Context(), memory.SeedSeasonID, ScheduleRelegationInput{Date: "2026-04-02"}); !errors.Is(err, ErrFailedPrecondition) {
		t.Fatalf("expected rescheduling after completion to fail, got %v", err)
	}

	commits := store.Stats().Commits
	if err := svc.HandleGameCompleted(t.Context(), GameCompletedEvent{SeasonID: memory.SeedSeasonID, GameID: RelegationGameID(memory.SeedSeasonID)}); err != nil {
		t.Fatalf("replayed event: %v", err)
	}
	if store.Stats().Commits != commits {
		t.Fatalf("replayed event wrote to the store")
	}
}

func TestRelegationService_RecordOutcomeTieIsRejected(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	completeSeasons(t, store)
	putMinorFinals(t, store, "M1")
	svc := newTestRelegation(t, store, 0)
	if _, err := svc.DetectMatchup(t.Context()); err != nil {
		t.Fatalf("detect matchup: %v", err)
	}
	if _, err := svc.ScheduleGame(t.Context(), memory.SeedSeasonID, ScheduleRelegationInput{Date: "2026-04-01"}); err != nil {
		t.Fatalf("schedule game: %v", err)
	}
	gameID := RelegationGameID(memory.SeedSeasonID)
	path := league.Major.SeasonGames(memory.SeedSeasonID, league.ExhibitionGamesCollection)
	played := mustGet[game.Game](t, store, path, gameID)
	played.Completed = true
	played.Team1Score, played.Team2Score = 100, 100
	mustPut(t, store, path, gameID, played)

	if _, err := svc.RecordOutcome(t.Context(), GameCompletedEvent{SeasonID: memory.SeedSeasonID, GameID: gameID}); !errors.Is(err, ErrFailedPrecondition) {
		t.Fatalf("expected tie to be rejected, got %v", err)
	}
	record := mustGet[relegation.Record](t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
	if record.Status != relegation.StatusScheduled {
		t.Fatalf("tie changed the record: %+v", record)
	}
}

func TestRelegationService_ExecutePromotion(t *testing.T) {
	t.Parallel()

	store, svc := decidedSeason(t, "M1")

	record, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1")
	if err != nil {
		t.Fatalf("execute promotion: %v", err)
	}
	if record.Status != relegation.StatusExecuted || record.ExecutionStep != relegation.StepDone || record.ExecutedBy != "admin-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if len(record.PlayersPromoted) != 3 || len(record.PlayersRelegated) != 3 {
		t.Fatalf("unexpected moved players: %v / %v", record.PlayersPromoted, record.PlayersRelegated)
	}
	if len(record.PicksToMajor) != 1 || record.PicksToMajor[0] != "M1-S10-R1" || len(record.PicksToMinor) != 1 || record.PicksToMinor[0] != "T3-S10-R1" {
		t.Fatalf("unexpected moved picks: %v / %v", record.PicksToMajor, record.PicksToMinor)
	}

	promotedTeam := mustGet[map[string]any](t, store, league.Major.Teams(), "M1")
	if promotedTeam["provenance"] != relegation.ProvenancePromoted {
		t.Fatalf("promoted team missing provenance: %v", promotedTeam)
	}
	relegatedRecord := mustGet[roster.TeamSeasonRecord](t, store, league.Minor.TeamSeasonalRecords("T3"), memory.SeedSeasonID)
	if relegatedRecord.SortScore != -5 {
		t.Fatalf("season record not copied: %+v", relegatedRecord)
	}

	for i := 1; i <= 3; i++ {
		promoted := mustGet[map[string]any](t, store, league.Major.Players(), fmt.Sprintf("M1-P%d", i))
		if promoted["provenance"] != relegation.ProvenancePromoted || promoted["current_team_id"] != "M1" {
			t.Fatalf("unexpected promoted player: %v", promoted)
		}
		source := mustGet[map[string]any](t, store, league.Minor.Players(), fmt.Sprintf("M1-P%d", i))
		if source["player_status"] != relegation.PlayerStatusTransferred || source["transferred_to"] != string(league.Major) {
			t.Fatalf("source player not marked transferred: %v", source)
		}
		relegated := mustGet[map[string]any](t, store, league.Minor.Players(), fmt.Sprintf("T3-P%d", i))
		if relegated["provenance"] != relegation.ProvenanceRelegated {
			t.Fatalf("unexpected relegated player: %v", relegated)
		}
	}

	mustNotExist(t, store, league.Minor.DraftPicks(), "M1-S10-R1")
	mustNotExist(t, store, league.Major.DraftPicks(), "T3-S10-R1")
	moved := mustGet[map[string]any](t, store, league.Major.DraftPicks(), "M1-S10-R1")
	if moved["moved_from_league"] != string(league.Minor) {
		t.Fatalf("unexpected moved pick: %v", moved)
	}
	mustGet[map[string]any](t, store, league.Major.DraftPicks(), "T1-S10-R1")

	history := mustGet[relegation.PromotionHistory](t, store, league.PromotionHistoryCollection, record.HistoryID)
	if history.PromotedTeamID != "M1" || history.RelegatedTeamID != "T3" || history.ExecutedBy != "admin-1" {
		t.Fatalf("unexpected history: %+v", history)
	}

	commits := store.Stats().Commits
	if _, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1"); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got %v", err)
	}
	if store.Stats().Commits != commits {
		t.Fatalf("second execution wrote to the store")
	}
}

func TestRelegationService_ExecutePromotionRequiresMinorWin(t *testing.T) {
	t.Parallel()

	store, svc := decidedSeason(t, "T3")
	before := store.Stats()

	if _, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1"); !errors.Is(err, ErrFailedPrecondition) {
		t.Fatalf("expected ErrFailedPrecondition, got %v", err)
	}
	if after := store.Stats(); after != before {
		t.Fatalf("rejected promotion wrote to the store: before=%+v after=%+v", before, after)
	}
	mustNotExist(t, store, league.Major.Teams(), "M1")
}

func TestRelegationService_ExecutePromotionRequiresCompletedGame(t *testing.T) {
	t.Parallel()

	store := newSeededStore(t)
	completeSeasons(t, store)
	putMinorFinals(t, store, "M1")
	svc := newTestRelegation(t, store, 0)

	if _, err := svc.DetectMatchup(t.Context()); err != nil {
		t.Fatalf("detect matchup: %v", err)
	}
	rejects := func(status relegation.Status) {
		t.Helper()
		before := store.Stats()
		if _, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1"); !errors.Is(err, ErrFailedPrecondition) || errors.Is(err, ErrAlreadyExecuted) {
			t.Fatalf("%s: expected ErrFailedPrecondition, got %v", status, err)
		}
		if after := store.Stats(); after != before {
			t.Fatalf("%s: rejected promotion wrote to the store: before=%+v after=%+v", status, before, after)
		}
	}

	rejects(relegation.StatusMatchupSet)
	if _, err := svc.ScheduleGame(t.Context(), memory.SeedSeasonID, ScheduleRelegationInput{Date: "2026-04-01"}); err != nil {
		t.Fatalf("schedule game: %v", err)
	}
	rejects(relegation.StatusScheduled)
	mustNotExist(t, store, league.Major.Teams(), "M1")
}

func TestRelegationService_ExecutePromotionUsesStoredSeasonNumber(t *testing.T) {
	t.Parallel()

	store, svc := decidedSeason(t, "M1")
	mustPut(t, store, league.Minor.DraftPicks(), "M1-S11-R1", roster.DraftPick{
		ID: "M1-S11-R1", Season: 11, Round: 1, OriginalTeam: "M1", CurrentOwner: "M1",
	})
	record := mustGet[relegation.Record](t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
	record.SeasonNumber = 10
	mustPut(t, store, league.RelegationRecordsCollection, memory.SeedSeasonID, record)

	got, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1")
	if err != nil {
		t.Fatalf("execute promotion: %v", err)
	}
	if len(got.PicksToMajor) != 1 || got.PicksToMajor[0] != "M1-S11-R1" {
		t.Fatalf("expected only the season 11 pick to move, got %v", got.PicksToMajor)
	}
	mustGet[map[string]any](t, store, league.Minor.DraftPicks(), "M1-S10-R1")
	mustNotExist(t, store, league.Major.DraftPicks(), "M1-S10-R1")
}

func TestRelegationService_ExecutePromotionAuditsPicksFromFailedAttempt(t *testing.T) {
	t.Parallel()

	store, _ := decidedSeason(t, "M1")
	for _, pickID := range []string{"M1-S11-R1", "M1-S11-R2"} {
		mustPut(t, store, league.Minor.DraftPicks(), pickID, roster.DraftPick{
			ID: pickID, Season: 11, Round: 1, OriginalTeam: "M1", CurrentOwner: "M1",
		})
	}
	record := mustGet[relegation.Record](t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
	record.ExecutionStep = relegation.StepPlayersMoved
	mustPut(t, store, league.RelegationRecordsCollection, memory.SeedSeasonID, record)

	// Two operations per pick: the first commit moves M1-S10-R1, the second fails.
	svc := newTestRelegation(t, store, 2)
	store.FailCommitAfter(1, errors.New("connection reset"))
	if _, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1"); err == nil {
		t.Fatalf("expected the first attempt to fail")
	}
	mustNotExist(t, store, league.Minor.DraftPicks(), "M1-S10-R1")
	mustGet[map[string]any](t, store, league.Minor.DraftPicks(), "M1-S11-R1")

	got, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1")
	if err != nil {
		t.Fatalf("resumed promotion: %v", err)
	}
	want := []string{"M1-S10-R1", "M1-S11-R1", "M1-S11-R2"}
	if !slices.Equal(got.PicksToMajor, want) {
		t.Fatalf("unexpected picks to major: %v", got.PicksToMajor)
	}
	history := mustGet[relegation.PromotionHistory](t, store, league.PromotionHistoryCollection, got.HistoryID)
	if !slices.Equal(history.PicksToMajor, want) || !slices.Equal(history.PicksToMinor, []string{"T3-S10-R1"}) {
		t.Fatalf("history does not list every moved pick: %v / %v", history.PicksToMajor, history.PicksToMinor)
	}
}

func TestRelegationService_ExecutePromotionResumes(t *testing.T) {
	t.Parallel()

	store, svc := decidedSeason(t, "M1")

	store.FailNextCommit(errors.New("connection reset"))
	if _, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1"); err == nil {
		t.Fatalf("expected the first attempt to fail")
	}
	record := mustGet[relegation.Record](t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
	if record.ExecutionStep != relegation.StepNone || record.ExecutedAt != nil {
		t.Fatalf("failed attempt advanced the cursor: %+v", record)
	}

	got, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1")
	if err != nil {
		t.Fatalf("resumed promotion: %v", err)
	}
	if got.Status != relegation.StatusExecuted || len(got.PlayersPromoted) != 3 {
		t.Fatalf("unexpected resumed record: %+v", got)
	}
}

func TestRelegationService_ExecutePromotionSkipsFinishedSteps(t *testing.T) {
	t.Parallel()

	store, svc := decidedSeason(t, "M1")

	record := mustGet[relegation.Record](t, store, league.RelegationRecordsCollection, memory.SeedSeasonID)
	record.ExecutionStep = relegation.StepPlayersMoved
	mustPut(t, store, league.RelegationRecordsCollection, memory.SeedSeasonID, record)

	got, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1")
	if err != nil {
		t.Fatalf("execute promotion: %v", err)
	}
	if got.Status != relegation.StatusExecuted || len(got.PicksToMajor) != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}
	mustNotExist(t, store, league.Major.Teams(), "M1")
	mustNotExist(t, store, league.Major.Players(), "M1-P1")
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

func TestRelegationService_ExecutePromotionInvalidatesTeamCache(t *testing.T) {
	t.Parallel()

	_, svc := decidedSeason(t, "M1")
	inv := &countingInvalidator{}
	svc.WithTeamCache(inv)

	if _, err := svc.ExecutePromotion(t.Context(), memory.SeedSeasonID, "admin-1"); err != nil {
		t.Fatalf("execute promotion: %v", err)
	}
	if inv.calls != 1 {
		t.Fatalf("expected one invalidation, got %d", inv.calls)
	}
}
