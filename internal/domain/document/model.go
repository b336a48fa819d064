package document

import (
	"errors"
	"time"

	sonic "github.com/bytedance/sonic"
)

// DefaultMaxBatchOps mirrors the per-commit operation ceiling of hosted document stores.
const DefaultMaxBatchOps = 500

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrBatchFull     = errors.New("batch operation limit reached")
	ErrInvalidBatch  = errors.New("invalid batch operation")
)

// Snapshot is a read-only view of a stored document.
type Snapshot struct {
	Collection string
	ID         string
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Snapshot) Decode(out any) error {
	if len(s.Data) == 0 {
		return nil
	}
	return sonic.Unmarshal(s.Data, out)
}

// Filter is a top-level field equality predicate.
type Filter struct {
	Field string
	Value any
}

func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// EncodeFilters folds filters into one JSON object, suitable for containment queries.
func EncodeFilters(filters []Filter) ([]byte, error) {
	if len(filters) == 0 {
		return []byte("{}"), nil
	}
	obj := make(map[string]any, len(filters))
	for _, f := range filters {
		if f.Field == "" {
			return nil, errors.New("filter field is required")
		}
		obj[f.Field] = f.Value
	}
	return sonic.Marshal(obj)
}

func Path(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "/"
		}
		out += p
	}
	return out
}
