package store

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStoreGetMissingReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	rec, err := m.Get(ctx, "expenses", "nope")
	if err != nil {
		t.Fatalf("Get on missing doc returned error: %v", err)
	}
	if rec != nil {
		t.Fatalf("Get on missing doc returned %v, want nil", rec)
	}
}

func TestMemoryStoreSetThenGetIsDeepCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	original := Record{"id": "e1", "tags": []interface{}{"a"}}
	if err := m.Set(ctx, "expenses", "e1", original); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	original["id"] = "mutated"
	got, err := m.Get(ctx, "expenses", "e1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["id"] != "e1" {
		t.Fatalf("stored doc was mutated through caller reference: %v", got["id"])
	}

	// Mutating a fetched copy must not leak either.
	got["id"] = "mutated-again"
	again, _ := m.Get(ctx, "expenses", "e1")
	if again["id"] != "e1" {
		t.Fatalf("stored doc was mutated through fetched reference: %v", again["id"])
	}
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i := 1; i <= 5; i++ {
		m.Set(ctx, "expenses", fmt.Sprintf("e%d", i), Record{
			"id":           fmt.Sprintf("e%d", i),
			"workspace_id": "w1",
			"status":       map[bool]string{true: "approved", false: "draft"}[i%2 == 0],
			"expense_date": fmt.Sprintf("2026-01-0%dT00:00:00Z", i),
		})
	}

	recs, err := m.Query(ctx, "expenses", []Filter{
		{Field: "workspace_id", Op: OpEqual, Value: "w1"},
		{Field: "status", Op: OpEqual, Value: "approved"},
	}, nil, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d approved records, want 2", len(recs))
	}

	recs, err = m.Query(ctx, "expenses", []Filter{
		{Field: "expense_date", Op: OpGreaterEqual, Value: "2026-01-02T00:00:00Z"},
		{Field: "expense_date", Op: OpLessEqual, Value: "2026-01-04T00:00:00Z"},
	}, nil, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records in date range, want 3", len(recs))
	}
}

func TestMemoryStoreQueryInFilterLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	ids := make([]string, InFilterLimit+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("w%d", i)
	}
	_, err := m.Query(ctx, "expenses", []Filter{
		{Field: "workspace_id", Op: OpIn, Value: ids},
	}, nil, 0)
	if err == nil {
		t.Fatalf("in-filter with %d values should be rejected", len(ids))
	}

	// Exactly the limit is fine.
	_, err = m.Query(ctx, "expenses", []Filter{
		{Field: "workspace_id", Op: OpIn, Value: ids[:InFilterLimit]},
	}, nil, 0)
	if err != nil {
		t.Fatalf("in-filter with %d values should be accepted: %v", InFilterLimit, err)
	}
}

func TestMemoryStoreQueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i := 1; i <= 4; i++ {
		m.Set(ctx, "expenses", fmt.Sprintf("e%d", i), Record{
			"id":           fmt.Sprintf("e%d", i),
			"expense_date": fmt.Sprintf("2026-01-0%dT00:00:00Z", i),
		})
	}

	recs, err := m.Query(ctx, "expenses", nil, &Order{Field: "expense_date", Desc: true}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0]["id"] != "e4" || recs[1]["id"] != "e3" {
		t.Fatalf("wrong order: %v, %v", recs[0]["id"], recs[1]["id"])
	}
}

func TestMemoryStoreUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Set(ctx, "budgets", "b1", Record{"id": "b1", "spent": "100", "name": "Eng"})

	if err := m.Update(ctx, "budgets", "b1", Record{"spent": "250"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	rec, _ := m.Get(ctx, "budgets", "b1")
	if rec["spent"] != "250" {
		t.Fatalf("spent = %v, want 250", rec["spent"])
	}
	if rec["name"] != "Eng" {
		t.Fatalf("untouched field lost: name = %v", rec["name"])
	}

	if err := m.Update(ctx, "budgets", "missing", Record{"spent": "1"}); err == nil {
		t.Fatalf("Update on missing doc should fail")
	}
}

func TestMemoryStoreBatchWriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Set(ctx, "expenses", "e1", Record{"id": "e1", "status": "draft"})

	// The second op targets a missing doc, so the first op must not apply.
	err := m.BatchWrite(ctx, []WriteOp{
		{Kind: WriteKindSet, Collection: "expenses", ID: "e2", Data: Record{"id": "e2"}},
		{Kind: WriteKindUpdate, Collection: "expenses", ID: "missing", Data: Record{"status": "paid"}},
	})
	if err == nil {
		t.Fatalf("batch with bad update should fail")
	}
	rec, _ := m.Get(ctx, "expenses", "e2")
	if rec != nil {
		t.Fatalf("failed batch leaked a write: %v", rec)
	}

	err = m.BatchWrite(ctx, []WriteOp{
		{Kind: WriteKindSet, Collection: "expenses", ID: "e2", Data: Record{"id": "e2"}},
		{Kind: WriteKindUpdate, Collection: "expenses", ID: "e1", Data: Record{"status": "paid"}},
		{Kind: WriteKindDelete, Collection: "expenses", ID: "e3"},
	})
	if err != nil {
		t.Fatalf("valid batch failed: %v", err)
	}
	rec, _ = m.Get(ctx, "expenses", "e1")
	if rec["status"] != "paid" {
		t.Fatalf("batch update not applied: %v", rec["status"])
	}
	rec, _ = m.Get(ctx, "expenses", "e2")
	if rec == nil {
		t.Fatalf("batch set not applied")
	}
}

func TestMemoryStoreBatchWriteSizeLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	ops := make([]WriteOp, MaxBatchWrite+1)
	for i := range ops {
		ops[i] = WriteOp{Kind: WriteKindSet, Collection: "expenses", ID: fmt.Sprintf("e%d", i), Data: Record{}}
	}
	if err := m.BatchWrite(ctx, ops); err == nil {
		t.Fatalf("batch of %d ops should exceed the limit", len(ops))
	}
	if err := m.BatchWrite(ctx, ops[:MaxBatchWrite]); err != nil {
		t.Fatalf("batch of %d ops should be accepted: %v", MaxBatchWrite, err)
	}
}
