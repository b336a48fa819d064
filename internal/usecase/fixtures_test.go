package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/potatocaustic/real-karma-league/internal/domain/bracket"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	"github.com/potatocaustic/real-karma-league/internal/domain/game"
	"github.com/potatocaustic/real-karma-league/internal/domain/league"
	"github.com/potatocaustic/real-karma-league/internal/domain/livescoring"
	"github.com/potatocaustic/real-karma-league/internal/domain/roster"
	"github.com/potatocaustic/real-karma-league/internal/infrastructure/repository/memory"
	"github.com/potatocaustic/real-karma-league/internal/platform/logging"
)

var fixedNow = time.Date(2026, time.March, 1, 22, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newSeededStore(t *testing.T) *memory.DocumentStore {
	t.Helper()

	store := memory.NewDocumentStore().WithClock(fixedClock)
	if err := memory.Seed(store); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func mustPut(t *testing.T, store *memory.DocumentStore, collection, id string, v any) {
	t.Helper()
	if err := store.Put(collection, id, v); err != nil {
		t.Fatalf("put %s/%s: %v", collection, id, err)
	}
}

func mustGet[T any](t *testing.T, store document.Store, collection, id string) T {
	t.Helper()
	v, ok, err := document.GetAs[T](context.Background(), store, collection, id)
	if err != nil {
		t.Fatalf("get %s/%s: %v", collection, id, err)
	}
	if !ok {
		t.Fatalf("expected %s/%s to exist", collection, id)
	}
	return v
}

func mustNotExist(t *testing.T, store document.Store, collection, id string) {
	t.Helper()
	_, ok, err := store.Get(context.Background(), collection, id)
	if err != nil {
		t.Fatalf("get %s/%s: %v", collection, id, err)
	}
	if ok {
		t.Fatalf("expected %s/%s to be absent", collection, id)
	}
}

func testBracketTable(t *testing.T) bracket.Table {
	t.Helper()
	table, err := bracket.Default()
	if err != nil {
		t.Fatalf("load bracket table: %v", err)
	}
	return table
}

func newTestLiveService(t *testing.T, store document.Store, scores livescoring.ScoreLookup, teams roster.Directory) *LiveGameService {
	t.Helper()
	svc := NewLiveGameService(store, scores, teams, testBracketTable(t), LiveGameConfig{FetchWorkers: 2, MaxAttempts: 3}, logging.NewNop())
	svc.now = fixedClock
	return svc
}

// stubDirectory answers team names from a fixed map.
type stubDirectory map[string]string

func (d stubDirectory) TeamNames(context.Context, league.League) (map[string]string, error) {
	return d, nil
}

// scoreTable is a deterministic ScoreLookup for scenarios that do not assert call counts.
type scoreTable struct {
	mu     sync.Mutex
	scores map[string]livescoring.PlayerScore
	errs   map[string]error
	calls  int
}

func (s *scoreTable) LookupScore(_ context.Context, playerID, _ string) (livescoring.PlayerScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[playerID]; err != nil {
		return livescoring.PlayerScore{}, err
	}
	return s.scores[playerID], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GameCompletedEvent
}

func (p *recordingPublisher) PublishGameCompleted(_ context.Context, event GameCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func liveGameFixture(gameID, seasonID, collection, team1, team2 string) game.LiveGame {
	lineup := func(teamID string) []game.LineupEntry {
		return []game.LineupEntry{
			{PlayerID: teamID + "-P1", PlayerHandle: teamID + "_1", TeamID: teamID, IsCaptain: true},
			{PlayerID: teamID + "-P2", PlayerHandle: teamID + "_2", TeamID: teamID, Deductions: 10},
		}
	}
	return game.LiveGame{
		GameID:         gameID,
		SeasonID:       seasonID,
		CollectionName: collection,
		Date:           memory.SeedGameDate,
		Team1ID:        team1,
		Team2ID:        team2,
		Team1Lineup:    lineup(team1),
		Team2Lineup:    lineup(team2),
		ActivatedAt:    fixedNow.Add(-time.Hour),
	}
}
