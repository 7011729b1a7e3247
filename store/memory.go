package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and the ops harness.
// Documents are deep-copied on the way in and out so callers never share
// mutable state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Record)}
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.collections[collection]
	if docs == nil {
		return nil, nil
	}
	rec, ok := docs[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int) ([]Record, error) {
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Record
	for _, rec := range m.collections[collection] {
		ok, err := matchRecord(rec, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, cloneRecord(rec))
		}
	}
	if order != nil {
		sort.SliceStable(results, func(i, j int) bool {
			c := compareValues(results[i][order.Field], results[j][order.Field])
			if order.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, data)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(collection, id, fields)
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func (m *MemoryStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) > MaxBatchWrite {
		return fmt.Errorf("store: batch of %d ops exceeds limit %d", len(ops), MaxBatchWrite)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Validate every op before applying any, so the batch is all-or-nothing.
	for _, op := range ops {
		switch op.Kind {
		case WriteKindSet:
			if op.Data == nil {
				return fmt.Errorf("store: set op on %s/%s has no data", op.Collection, op.ID)
			}
		case WriteKindUpdate:
			docs := m.collections[op.Collection]
			if docs == nil {
				return fmt.Errorf("store: update op on missing document %s/%s", op.Collection, op.ID)
			}
			if _, ok := docs[op.ID]; !ok {
				return fmt.Errorf("store: update op on missing document %s/%s", op.Collection, op.ID)
			}
		case WriteKindDelete:
		default:
			return fmt.Errorf("store: unknown write kind %q", op.Kind)
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case WriteKindSet:
			m.setLocked(op.Collection, op.ID, op.Data)
		case WriteKindUpdate:
			if err := m.updateLocked(op.Collection, op.ID, op.Data); err != nil {
				return err
			}
		case WriteKindDelete:
			delete(m.collections[op.Collection], op.ID)
		}
	}
	return nil
}

func (m *MemoryStore) setLocked(collection, id string, data Record) {
	docs := m.collections[collection]
	if docs == nil {
		docs = make(map[string]Record)
		m.collections[collection] = docs
	}
	docs[id] = cloneRecord(data)
}

func (m *MemoryStore) updateLocked(collection, id string, fields Record) error {
	docs := m.collections[collection]
	if docs == nil {
		return fmt.Errorf("store: update on missing document %s/%s", collection, id)
	}
	rec, ok := docs[id]
	if !ok {
		return fmt.Errorf("store: update on missing document %s/%s", collection, id)
	}
	for k, v := range cloneRecord(fields) {
		rec[k] = v
	}
	return nil
}

func matchRecord(rec Record, filters []Filter) (bool, error) {
	for _, f := range filters {
		v := rec[f.Field]
		switch f.Op {
		case OpEqual:
			if compareValues(v, f.Value) != 0 {
				return false, nil
			}
		case OpIn:
			values := f.Value.([]string) // validated upfront
			s, ok := v.(string)
			if !ok {
				return false, nil
			}
			found := false
			for _, candidate := range values {
				if candidate == s {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case OpGreaterEqual:
			if compareValues(v, f.Value) < 0 {
				return false, nil
			}
		case OpLessEqual:
			if compareValues(v, f.Value) > 0 {
				return false, nil
			}
		default:
			return false, fmt.Errorf("store: unsupported filter op %q", f.Op)
		}
	}
	return true, nil
}

// compareValues orders the primitive types documents carry. Mixed or unknown
// types compare by string form so sorting stays deterministic.
func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case float64:
		if bv, ok := toFloat(b); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case int:
		if bv, ok := toFloat(b); ok {
			fv := float64(av)
			switch {
			case fv < bv:
				return -1
			case fv > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av {
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			}
			return 0
		}
	}
	as := fmt.Sprint(a)
	bs := fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case Record:
		return cloneRecord(tv)
	case map[string]interface{}:
		return map[string]interface{}(cloneRecord(tv))
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(tv))
		copy(out, tv)
		return out
	case []Record:
		out := make([]Record, len(tv))
		for i, e := range tv {
			out[i] = cloneRecord(e)
		}
		return out
	}
	return v
}
