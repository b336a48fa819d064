package document

import (
	"fmt"

	sonic "github.com/bytedance/sonic"
)

type OpKind string

const (
	OpCreate    OpKind = "create"
	OpSet       OpKind = "set"
	OpUpdate    OpKind = "update"
	OpDelete    OpKind = "delete"
	OpIncrement OpKind = "increment"
)

type Operation struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       []byte
	Field      string
	Delta      float64
	MustExist  bool
}

// Batch collects writes for a single atomic commit.
type Batch struct {
	ops   []Operation
	limit int
}

func NewBatch(limit int) *Batch {
	if limit <= 0 {
		limit = DefaultMaxBatchOps
	}
	return &Batch{limit: limit}
}

func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) Limit() int {
	return b.limit
}

func (b *Batch) Full() bool {
	return len(b.ops) >= b.limit
}

func (b *Batch) Operations() []Operation {
	return append([]Operation(nil), b.ops...)
}

func (b *Batch) Create(collection, id string, v any) error {
	return b.addEncoded(OpCreate, collection, id, v)
}

func (b *Batch) Set(collection, id string, v any) error {
	return b.addEncoded(OpSet, collection, id, v)
}

// Update merges top-level fields into an existing document.
func (b *Batch) Update(collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: update %s/%s has no fields", ErrInvalidBatch, collection, id)
	}
	return b.addEncoded(OpUpdate, collection, id, fields)
}

func (b *Batch) Delete(collection, id string) error {
	return b.add(Operation{Kind: OpDelete, Collection: collection, ID: id})
}

// DeleteExisting fails the whole commit when the document is already gone.
func (b *Batch) DeleteExisting(collection, id string) error {
	return b.add(Operation{Kind: OpDelete, Collection: collection, ID: id, MustExist: true})
}

func (b *Batch) Increment(collection, id, field string, delta float64) error {
	if field == "" {
		return fmt.Errorf("%w: increment %s/%s has no field", ErrInvalidBatch, collection, id)
	}
	return b.add(Operation{Kind: OpIncrement, Collection: collection, ID: id, Field: field, Delta: delta})
}

func (b *Batch) addEncoded(kind OpKind, collection, id string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s/%s: %w", kind, collection, id, err)
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("%w: %s %s/%s must encode to a JSON object", ErrInvalidBatch, kind, collection, id)
	}
	return b.add(Operation{Kind: kind, Collection: collection, ID: id, Data: data})
}

func (b *Batch) add(op Operation) error {
	if op.Collection == "" || op.ID == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidBatch)
	}
	if len(b.ops) >= b.limit {
		return fmt.Errorf("%w: limit=%d", ErrBatchFull, b.limit)
	}
	b.ops = append(b.ops, op)
	return nil
}
