package index

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/4thel00z/memcore/record"
)

func TestUpsertLearnsDimension(t *testing.T) {
	ix := New(0)
	if err := ix.Upsert("a", []float32{1, 0, 0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ix.Dimension() != 3 {
		t.Errorf("dimension = %d, want 3", ix.Dimension())
	}

	err := ix.Upsert("b", []float32{1, 0})
	if !errors.Is(err, record.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestUpsertRejectsEmpty(t *testing.T) {
	ix := New(0)
	if err := ix.Upsert("a", nil); !errors.Is(err, record.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	ix := New(3)
	ix.Remove("ghost")
	if ix.Len() != 0 {
		t.Errorf("len = %d", ix.Len())
	}
}

func TestSearchOrdering(t *testing.T) {
	ix := New(2)
	ctx := context.Background()

	// b and c score identically against the query; the tie breaks by id.
	mustUpsert(t, ix, "a", []float32{1, 0})
	mustUpsert(t, ix, "c", []float32{0, 1})
	mustUpsert(t, ix, "b", []float32{0, 1})

	results, err := ix.Search(ctx, []float32{0, 1}, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	ids := resultIDs(results)
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "c" || ids[2] != "a" {
		t.Errorf("order = %v, want [b c a]", ids)
	}
}

func TestSearchTruncation(t *testing.T) {
	ix := New(2)
	ctx := context.Background()
	mustUpsert(t, ix, "a", []float32{1, 0})
	mustUpsert(t, ix, "b", []float32{0, 1})
	mustUpsert(t, ix, "c", []float32{1, 1})

	results, err := ix.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("best = %s, want a", results[0].ID)
	}
}

func TestSearchFilter(t *testing.T) {
	ix := New(2)
	ctx := context.Background()
	mustUpsert(t, ix, "a", []float32{1, 0})
	mustUpsert(t, ix, "b", []float32{1, 0})

	results, err := ix.Search(ctx, []float32{1, 0}, 0, map[string]struct{}{"b": {}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("results = %v, want only b", results)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New(0)
	results, err := ix.Search(context.Background(), []float32{1, 2, 3}, 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestSearchEmptyDimensionedIndex(t *testing.T) {
	ix := New(3)

	// A fixed dimension binds even before anything is indexed.
	_, err := ix.Search(context.Background(), []float32{1, 0}, 0, nil)
	if !errors.Is(err, record.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	results, err := ix.Search(context.Background(), []float32{1, 0, 0}, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	ix := New(3)
	mustUpsert(t, ix, "a", []float32{1, 0, 0})

	_, err := ix.Search(context.Background(), []float32{1, 0}, 0, nil)
	if !errors.Is(err, record.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		got := Cosine(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	ix := New(2)
	mustUpsert(t, ix, "a", []float32{1, 0})
	mustUpsert(t, ix, "b", []float32{0, 1})

	data, err := ix.Dump()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}

	restored := New(0)
	if err := restored.Load(data); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.Dimension() != 2 || restored.Len() != 2 {
		t.Errorf("restored dimension=%d len=%d", restored.Dimension(), restored.Len())
	}
	if !restored.Contains("a") || !restored.Contains("b") {
		t.Error("restored index missing vectors")
	}
}

func mustUpsert(t *testing.T, ix *Index, id string, vec []float32) {
	t.Helper()
	if err := ix.Upsert(id, vec); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}
