package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// CachedGateway decorates a Gateway with an in-process cache keyed by the
// exact input text. Re-embedding identical content (common on update paths
// and index rebuilds) then costs nothing.
type CachedGateway struct {
	inner Gateway
	cache *ristretto.Cache
}

var _ Gateway = (*CachedGateway)(nil)

func NewCachedGateway(inner Gateway, maxBytes int64) (*CachedGateway, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "create embedding cache")
	}
	return &CachedGateway{inner: inner, cache: cache}, nil
}

func (g *CachedGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := g.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}

	vec, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	g.cache.Set(text, append([]float32(nil), vec...), int64(len(vec)*4))
	return vec, nil
}

func (g *CachedGateway) Dimension() int {
	return g.inner.Dimension()
}

// Wait blocks until pending cache writes are visible. Tests use this.
func (g *CachedGateway) Wait() {
	g.cache.Wait()
}

// Close releases the cache.
func (g *CachedGateway) Close() {
	g.cache.Close()
}
