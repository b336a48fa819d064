package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
	qb "github.com/potatocaustic/real-karma-league/internal/platform/querybuilder"
)

// DocumentStore keeps every collection in one jsonb table; a batch is one transaction.
type DocumentStore struct {
	db     *sqlx.DB
	maxOps int
}

func NewDocumentStore(db *sqlx.DB, maxOps int) *DocumentStore {
	if maxOps <= 0 {
		maxOps = document.DefaultMaxBatchOps
	}
	return &DocumentStore{db: db, maxOps: maxOps}
}

func (s *DocumentStore) MaxBatchOps() int {
	return s.maxOps
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (document.Snapshot, bool, error) {
	query, args, err := qb.Select("collection", "id", "data", "created_at", "updated_at").
		From(documentsTable).
		Where(qb.Eq("collection", collection), qb.Eq("id", id)).
		Limit(1).
		ToSQL()
	if err != nil {
		return document.Snapshot{}, false, fmt.Errorf("build select document query: %w", err)
	}

	var row documentTableModel
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return document.Snapshot{}, false, nil
		}
		return document.Snapshot{}, false, fmt.Errorf("select document %s/%s: %w", collection, id, err)
	}

	return row.snapshot(), true, nil
}

func (s *DocumentStore) Query(ctx context.Context, collection string, filters ...document.Filter) ([]document.Snapshot, error) {
	conditions := []qb.Condition{qb.Eq("collection", collection)}
	if len(filters) > 0 {
		raw, err := document.EncodeFilters(filters)
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		conditions = append(conditions, qb.Contains("data", string(raw)))
	}

	query, args, err := qb.Select("collection", "id", "data", "created_at", "updated_at").
		From(documentsTable).
		Where(conditions...).
		OrderBy("id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query documents query: %w", err)
	}

	var rows []documentTableModel
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query documents collection=%s: %w", collection, err)
	}

	out := make([]document.Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.snapshot())
	}
	return out, nil
}

func (s *DocumentStore) Commit(ctx context.Context, batch *document.Batch) (err error) {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	if batch.Len() > s.maxOps {
		return fmt.Errorf("%w: %d operations exceeds limit %d", document.ErrBatchFull, batch.Len(), s.maxOps)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, op := range batch.Operations() {
		if err = applyOperation(ctx, tx, op); err != nil {
			return fmt.Errorf("batch op %d %s %s/%s: %w", i, op.Kind, op.Collection, op.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit document batch: %w", err)
	}
	return nil
}

func applyOperation(ctx context.Context, tx *sqlx.Tx, op document.Operation) error {
	switch op.Kind {
	case document.OpCreate:
		query, args, err := qb.InsertModel(documentsTable, documentInsertModel{
			Collection: op.Collection,
			ID:         op.ID,
			Data:       string(op.Data),
		}, "ON CONFLICT (collection, id) DO NOTHING")
		if err != nil {
			return err
		}
		return execExpectingRow(ctx, tx, document.ErrAlreadyExists, query, args...)
	case document.OpSet:
		query, args, err := qb.InsertModel(documentsTable, documentInsertModel{
			Collection: op.Collection,
			ID:         op.ID,
			Data:       string(op.Data),
		}, `ON CONFLICT (collection, id) DO UPDATE SET
    data = EXCLUDED.data,
    updated_at = NOW()`)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	case document.OpUpdate:
		query, args, err := qb.Update(documentsTable).
			SetExpr("data", "data || ?::jsonb", string(op.Data)).
			SetExpr("updated_at", "NOW()").
			Where(qb.Eq("collection", op.Collection), qb.Eq("id", op.ID)).
			ToSQL()
		if err != nil {
			return err
		}
		return execExpectingRow(ctx, tx, document.ErrNotFound, query, args...)
	case document.OpDelete:
		query, args, err := qb.DeleteFrom(documentsTable).
			Where(qb.Eq("collection", op.Collection), qb.Eq("id", op.ID)).
			ToSQL()
		if err != nil {
			return err
		}
		if op.MustExist {
			return execExpectingRow(ctx, tx, document.ErrNotFound, query, args...)
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	case document.OpIncrement:
		seed, err := sonic.Marshal(map[string]float64{op.Field: op.Delta})
		if err != nil {
			return err
		}
		query, args, err := qb.InsertInto(documentsTable).
			Columns("collection", "id", "data").
			Values(op.Collection, op.ID, string(seed)).
			Suffix(`ON CONFLICT (collection, id) DO UPDATE SET
    data = jsonb_set(
        documents.data,
        ARRAY[?]::text[],
        to_jsonb(COALESCE((documents.data->>?)::numeric, 0) + ?::numeric)
    ),
    updated_at = NOW()`, op.Field, op.Field, op.Delta).
			ToSQL()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	default:
		return fmt.Errorf("%w: unknown op %q", document.ErrInvalidBatch, op.Kind)
	}
}

func execExpectingRow(ctx context.Context, tx *sqlx.Tx, missing error, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func (m documentTableModel) snapshot() document.Snapshot {
	return document.Snapshot{
		Collection: m.Collection,
		ID:         m.ID,
		Data:       []byte(m.Data),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
