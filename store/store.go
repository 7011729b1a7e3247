// Package store defines the document-store boundary the engine is built
// against. Implementations must provide atomic single-document reads/writes
// and all-or-nothing batch writes; multi-value equality filters are capped at
// InFilterLimit values per query, so callers fan-out over larger id sets.
package store

import (
	"context"
	"fmt"
)

// InFilterLimit is the maximum number of values a single OpIn filter accepts.
// Queries over more ids must be chunked by the caller.
const InFilterLimit = 10

// MaxBatchWrite is the maximum number of ops in one atomic batch.
const MaxBatchWrite = 500

type FilterOp string

const (
	OpEqual        = FilterOp("==")
	OpIn           = FilterOp("in")
	OpGreaterEqual = FilterOp(">=")
	OpLessEqual    = FilterOp("<=")
)

// Filter is a single field predicate. For OpIn, Value must be a []string of
// at most InFilterLimit elements.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

type Order struct {
	Field string
	Desc  bool
}

// Record is a raw document as stored. Conversion to typed models happens once
// at the models boundary, never at call sites.
type Record map[string]interface{}

type WriteKind string

const (
	WriteKindSet    = WriteKind("set")
	WriteKindUpdate = WriteKind("update")
	WriteKindDelete = WriteKind("delete")
)

type WriteOp struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       Record
}

type Store interface {
	// Get returns nil (no error) when the document does not exist.
	Get(ctx context.Context, collection, id string) (Record, error)
	Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int) ([]Record, error)
	Set(ctx context.Context, collection, id string, data Record) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Record) error
	Delete(ctx context.Context, collection, id string) error
	// BatchWrite applies all ops atomically, or none of them.
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// ValidateFilters enforces the store's filter limits. Shared by every
// implementation so the 10-value cap cannot be bypassed by swapping backends.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Op != OpIn {
			continue
		}
		values, ok := f.Value.([]string)
		if !ok {
			return fmt.Errorf("store: in-filter on %q requires []string value", f.Field)
		}
		if len(values) == 0 {
			return fmt.Errorf("store: in-filter on %q requires at least one value", f.Field)
		}
		if len(values) > InFilterLimit {
			return fmt.Errorf("store: in-filter on %q has %d values, limit is %d", f.Field, len(values), InFilterLimit)
		}
	}
	return nil
}
