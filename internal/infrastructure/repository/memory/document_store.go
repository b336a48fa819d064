package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/potatocaustic/real-karma-league/internal/domain/document"
)

type storedDocument struct {
	data      []byte
	createdAt time.Time
	updatedAt time.Time
}

// CommitStats counts what reached the store, used by tests asserting zero-write paths.
type CommitStats struct {
	Commits    int
	Operations int
}

type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]storedDocument
	maxOps      int
	now         func() time.Time
	stats       CommitStats
	failNext    error
	failSkip    int
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]storedDocument),
		maxOps:      document.DefaultMaxBatchOps,
		now:         time.Now,
	}
}

func (s *DocumentStore) WithMaxBatchOps(n int) *DocumentStore {
	if n > 0 {
		s.maxOps = n
	}
	return s
}

func (s *DocumentStore) WithClock(now func() time.Time) *DocumentStore {
	if now != nil {
		s.now = now
	}
	return s
}

// FailNextCommit makes the next Commit return err without applying anything.
func (s *DocumentStore) FailNextCommit(err error) {
	s.FailCommitAfter(0, err)
}

// FailCommitAfter lets n commits apply and makes the one after return err.
func (s *DocumentStore) FailCommitAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
	s.failSkip = max(n, 0)
}

func (s *DocumentStore) Stats() CommitStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Put seeds a document outside of any batch.
func (s *DocumentStore) Put(collection, id string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	docs := s.collections[collection]
	if docs == nil {
		docs = make(map[string]storedDocument)
		s.collections[collection] = docs
	}
	docs[id] = storedDocument{data: data, createdAt: now, updatedAt: now}
	return nil
}

func (s *DocumentStore) MaxBatchOps() int {
	return s.maxOps
}

func (s *DocumentStore) Get(_ context.Context, collection, id string) (document.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return document.Snapshot{}, false, nil
	}
	return snapshotOf(collection, id, doc), true, nil
}

func (s *DocumentStore) Query(_ context.Context, collection string, filters ...document.Filter) ([]document.Snapshot, error) {
	want, err := normalizedFilters(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]document.Snapshot, 0, len(ids))
	for _, id := range ids {
		doc := docs[id]
		if len(want) > 0 {
			fields, err := decodeObject(doc.data)
			if err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
			}
			if !matches(fields, want) {
				continue
			}
		}
		out = append(out, snapshotOf(collection, id, doc))
	}
	return out, nil
}

func (s *DocumentStore) Commit(_ context.Context, batch *document.Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	if batch.Len() > s.maxOps {
		return fmt.Errorf("%w: %d operations exceeds limit %d", document.ErrBatchFull, batch.Len(), s.maxOps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		if s.failSkip > 0 {
			s.failSkip--
		} else {
			err := s.failNext
			s.failNext = nil
			return err
		}
	}

	now := s.now().UTC()
	overlay := make(map[string]map[string]*storedDocument)
	lookup := func(collection, id string) *storedDocument {
		if docs, ok := overlay[collection]; ok {
			if doc, ok := docs[id]; ok {
				return doc
			}
		}
		if doc, ok := s.collections[collection][id]; ok {
			cp := doc
			return &cp
		}
		return nil
	}
	stage := func(collection, id string, doc *storedDocument) {
		if overlay[collection] == nil {
			overlay[collection] = make(map[string]*storedDocument)
		}
		overlay[collection][id] = doc
	}

	for _, op := range batch.Operations() {
		current := lookup(op.Collection, op.ID)
		switch op.Kind {
		case document.OpCreate:
			if current != nil {
				return fmt.Errorf("%w: %s/%s", document.ErrAlreadyExists, op.Collection, op.ID)
			}
			stage(op.Collection, op.ID, &storedDocument{data: op.Data, createdAt: now, updatedAt: now})
		case document.OpSet:
			created := now
			if current != nil {
				created = current.createdAt
			}
			stage(op.Collection, op.ID, &storedDocument{data: op.Data, createdAt: created, updatedAt: now})
		case document.OpUpdate:
			if current == nil {
				return fmt.Errorf("%w: %s/%s", document.ErrNotFound, op.Collection, op.ID)
			}
			merged, err := mergeObjects(current.data, op.Data)
			if err != nil {
				return fmt.Errorf("merge %s/%s: %w", op.Collection, op.ID, err)
			}
			stage(op.Collection, op.ID, &storedDocument{data: merged, createdAt: current.createdAt, updatedAt: now})
		case document.OpDelete:
			if current == nil && op.MustExist {
				return fmt.Errorf("%w: %s/%s", document.ErrNotFound, op.Collection, op.ID)
			}
			stage(op.Collection, op.ID, nil)
		case document.OpIncrement:
			next, created, err := incrementField(current, op.Field, op.Delta, now)
			if err != nil {
				return fmt.Errorf("increment %s/%s.%s: %w", op.Collection, op.ID, op.Field, err)
			}
			stage(op.Collection, op.ID, &storedDocument{data: next, createdAt: created, updatedAt: now})
		default:
			return fmt.Errorf("%w: unknown op %q", document.ErrInvalidBatch, op.Kind)
		}
	}

	for collection, docs := range overlay {
		target := s.collections[collection]
		if target == nil {
			target = make(map[string]storedDocument)
			s.collections[collection] = target
		}
		for id, doc := range docs {
			if doc == nil {
				delete(target, id)
				continue
			}
			target[id] = *doc
		}
	}
	s.stats.Commits++
	s.stats.Operations += batch.Len()
	return nil
}

func snapshotOf(collection, id string, doc storedDocument) document.Snapshot {
	return document.Snapshot{
		Collection: collection,
		ID:         id,
		Data:       append([]byte(nil), doc.data...),
		CreatedAt:  doc.createdAt,
		UpdatedAt:  doc.updatedAt,
	}
}

func decodeObject(raw []byte) (map[string]any, error) {
	out := make(map[string]any)
	if len(raw) == 0 {
		return out, nil
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeObjects(base, patch []byte) ([]byte, error) {
	dst, err := decodeObject(base)
	if err != nil {
		return nil, err
	}
	src, err := decodeObject(patch)
	if err != nil {
		return nil, err
	}
	for k, v := range src {
		dst[k] = v
	}
	return sonic.Marshal(dst)
}

func incrementField(current *storedDocument, field string, delta float64, now time.Time) ([]byte, time.Time, error) {
	fields := map[string]any{}
	created := now
	if current != nil {
		decoded, err := decodeObject(current.data)
		if err != nil {
			return nil, created, err
		}
		fields = decoded
		created = current.createdAt
	}

	var base float64
	switch v := fields[field].(type) {
	case nil:
	case float64:
		base = v
	default:
		return nil, created, fmt.Errorf("field is %T, not a number", v)
	}
	fields[field] = base + delta

	data, err := sonic.Marshal(fields)
	return data, created, err
}

// normalizedFilters round-trips filter values through JSON so they compare
// against decoded documents the same way a jsonb containment check would.
func normalizedFilters(filters []document.Filter) (map[string]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	raw, err := document.EncodeFilters(filters)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func matches(fields, want map[string]any) bool {
	for k, v := range want {
		got, ok := fields[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}
