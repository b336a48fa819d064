package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
)

func newMockStore(t *testing.T) (*DocumentStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewDocumentStore(sqlx.NewDb(db, "postgres"), 0), mock
}

func TestDocumentStore_QueryUsesContainment(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"collection", "id", "data", "created_at", "updated_at"}).
		AddRow("seasons/S9/post_games", "g2", `{"series_id":"W1vW8"}`, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE collection = $1 AND data @> $2::jsonb ORDER BY id")).
		WithArgs("seasons/S9/post_games", `{"series_id":"W1vW8"}`).
		WillReturnRows(rows)

	got, err := store.Query(context.Background(), "seasons/S9/post_games", document.Where("series_id", "W1vW8"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "g2" {
		t.Fatalf("unexpected snapshots: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_GetMissingReturnsFalse(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE collection = $1 AND id = $2")).
		WithArgs("live_games", "g1").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data", "created_at", "updated_at"}))

	_, ok, err := store.Get(context.Background(), "live_games", "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing document")
	}
}

func TestDocumentStore_CommitRollsBackOnMissingUpdate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, id) DO UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET data = data || $1::jsonb")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	batch := document.NewBatch(0)
	if err := batch.Set("seasons/S9/lineups", "g1-p1", map[string]any{"player_id": "p1"}); err != nil {
		t.Fatalf("stage set: %v", err)
	}
	if err := batch.Update("seasons/S9/games", "g1", map[string]any{"completed": "TRUE"}); err != nil {
		t.Fatalf("stage update: %v", err)
	}

	err := store.Commit(context.Background(), batch)
	if !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_CreateConflictIsAlreadyExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (collection, id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	batch := document.NewBatch(0)
	if err := batch.Create("live_games", "g1", map[string]any{"game_id": "g1"}); err != nil {
		t.Fatalf("stage create: %v", err)
	}

	if err := store.Commit(context.Background(), batch); !errors.Is(err, document.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDocumentStore_IncrementUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("to_jsonb(COALESCE((documents.data->>$5)::numeric, 0) + $6::numeric)")).
		WithArgs("usage_stats", "2026-10-18", `{"live_scoring_reads":3}`, "live_scoring_reads", "live_scoring_reads", float64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch := document.NewBatch(0)
	if err := batch.Increment("usage_stats", "2026-10-18", "live_scoring_reads", 3); err != nil {
		t.Fatalf("stage increment: %v", err)
	}
	if err := store.Commit(context.Background(), batch); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
