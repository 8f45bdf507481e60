// Package index maintains per-record embeddings and answers top-K cosine
// similarity queries. The scan is brute force: correct, deterministic and
// bounded by dataset size. Approximate structures are a future optimization,
// not part of the contract.
package index

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

// Result is a single search hit. Results are ordered by descending score,
// ties broken by ascending id.
type Result struct {
	ID    string
	Score float64
}

// Index is a thread-safe in-memory vector index. It holds nothing that is
// not derivable from the record store and can be rebuilt from it at any time.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float32
}

// New creates an index. A dimension of 0 means the dimension is fixed by the
// first inserted vector.
func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}
}

// Upsert inserts or replaces the vector for id.
func (ix *Index) Upsert(id string, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(vec) == 0 {
		return goerr.Wrap(record.ErrValidation, "empty embedding", goerr.Value("id", id))
	}
	if ix.dimension == 0 {
		ix.dimension = len(vec)
	}
	if len(vec) != ix.dimension {
		return goerr.Wrap(record.ErrDimensionMismatch, "upsert vector",
			goerr.Value("id", id), goerr.Value("want", ix.dimension), goerr.Value("got", len(vec)))
	}

	ix.vectors[id] = append([]float32(nil), vec...)
	return nil
}

// Remove deletes the vector for id. Removing an absent id is a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
}

// Contains reports whether id has an indexed vector.
func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.vectors[id]
	return ok
}

// IDs returns the indexed ids in no particular order.
func (ix *Index) IDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.vectors))
	for id := range ix.vectors {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Dimension returns the fixed dimension, or 0 if none is set yet.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

// Search scans every indexed vector (optionally restricted to the ids in
// filter) and returns the k highest cosine similarity scores in descending
// order. k <= 0 means no truncation. The scan performs no mutation, so a
// cancelled context leaves no partial state.
func (ix *Index) Search(ctx context.Context, query []float32, k int, filter map[string]struct{}) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// A fixed dimension binds even while the index is empty.
	if ix.dimension != 0 && len(query) != ix.dimension {
		return nil, goerr.Wrap(record.ErrDimensionMismatch, "query vector",
			goerr.Value("want", ix.dimension), goerr.Value("got", len(query)))
	}
	if len(ix.vectors) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(ix.vectors))
	i := 0
	for id, vec := range ix.vectors {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i++
		if filter != nil {
			if _, ok := filter[id]; !ok {
				continue
			}
		}
		results = append(results, Result{ID: id, Score: Cosine(query, vec)})
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].ID < results[b].ID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Cosine computes the cosine similarity between two vectors of equal length.
// Zero vectors score 0.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type snapshot struct {
	Dimension int                  `json:"dimension"`
	Vectors   map[string][]float32 `json:"vectors"`
}

// Dump serializes the index so the owning store can persist it alongside the
// records. The dump is a cache; a stale or missing dump is recovered by
// rebuilding from the record store.
func (ix *Index) Dump() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return json.Marshal(snapshot{Dimension: ix.dimension, Vectors: ix.vectors})
}

// Load replaces the index contents from a previous Dump.
func (ix *Index) Load(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return goerr.Wrap(err, "decode index snapshot")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if snap.Vectors == nil {
		snap.Vectors = make(map[string][]float32)
	}
	ix.dimension = snap.Dimension
	ix.vectors = snap.Vectors
	return nil
}
