package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// LocalGateway is a deterministic offline provider: the embedding is derived
// from a hash of the text, then normalized to a unit vector. Identical text
// always maps to the identical vector, which is what the engine's tests and
// air-gapped deployments rely on. It is not semantically meaningful.
type LocalGateway struct {
	dimension int
}

var _ Gateway = (*LocalGateway)(nil)

func NewLocalGateway(dimension int) *LocalGateway {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalGateway{dimension: dimension}
}

func (g *LocalGateway) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, g.dimension)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

func (g *LocalGateway) Dimension() int {
	return g.dimension
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	inv := 1 / float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
