// Package embedding converts text into fixed-length vectors through a
// pluggable provider. The engine core never branches on provider identity,
// it only calls the Gateway capability.
package embedding

import "context"

// Gateway is the narrow contract the engine depends on. Provider failures
// surface as record.ErrProvider or record.ErrRateLimited so callers can
// apply backoff; the engine itself never retries.
type Gateway interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// BatchGateway is implemented by providers that support batched requests.
type BatchGateway interface {
	Gateway
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
