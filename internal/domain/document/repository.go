package document

import "context"

// Store is the transactional document database the engines coordinate through.
type Store interface {
	Get(ctx context.Context, collection, id string) (Snapshot, bool, error)
	// Query returns documents whose top-level fields equal every filter, ordered by id.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	// Commit applies every operation in the batch atomically or none of them.
	Commit(ctx context.Context, batch *Batch) error
	MaxBatchOps() int
}

// GetAs loads a single document into T.
func GetAs[T any](ctx context.Context, store Store, collection, id string) (T, bool, error) {
	var out T
	snap, ok, err := store.Get(ctx, collection, id)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := snap.Decode(&out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// Decoded pairs a document id with its decoded body.
type Decoded[T any] struct {
	ID    string
	Value T
}

func QueryAs[T any](ctx context.Context, store Store, collection string, filters ...Filter) ([]Decoded[T], error) {
	snaps, err := store.Query(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]Decoded[T], 0, len(snaps))
	for _, snap := range snaps {
		var v T
		if err := snap.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, Decoded[T]{ID: snap.ID, Value: v})
	}
	return out, nil
}
