package document

import (
	"context"
	"fmt"
)

// BatchWriter spreads a long sequence of writes over several capped commits.
// Each commit is atomic; the sequence as a whole is not.
type BatchWriter struct {
	store     Store
	size      int
	current   *Batch
	committed int
	batches   int
}

func NewBatchWriter(store Store, size int) *BatchWriter {
	limit := store.MaxBatchOps()
	if size <= 0 || size > limit {
		size = limit
	}
	return &BatchWriter{
		store:   store,
		size:    size,
		current: NewBatch(size),
	}
}

func (w *BatchWriter) Set(ctx context.Context, collection, id string, v any) error {
	return w.do(ctx, func(b *Batch) error { return b.Set(collection, id, v) })
}

func (w *BatchWriter) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return w.do(ctx, func(b *Batch) error { return b.Update(collection, id, fields) })
}

func (w *BatchWriter) Delete(ctx context.Context, collection, id string) error {
	return w.do(ctx, func(b *Batch) error { return b.Delete(collection, id) })
}

func (w *BatchWriter) Increment(ctx context.Context, collection, id, field string, delta float64) error {
	return w.do(ctx, func(b *Batch) error { return b.Increment(collection, id, field, delta) })
}

func (w *BatchWriter) do(ctx context.Context, op func(*Batch) error) error {
	if w.current.Full() {
		if err := w.Flush(ctx); err != nil {
			return err
		}
	}
	return op(w.current)
}

// Flush commits pending operations, if any.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if w.current.Len() == 0 {
		return nil
	}
	n := w.current.Len()
	if err := w.store.Commit(ctx, w.current); err != nil {
		return fmt.Errorf("commit batch %d (%d ops): %w", w.batches+1, n, err)
	}
	w.committed += n
	w.batches++
	w.current = NewBatch(w.size)
	return nil
}

func (w *BatchWriter) Committed() (batches, operations int) {
	return w.batches, w.committed
}
