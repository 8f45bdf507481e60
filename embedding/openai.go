package embedding

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/4thel00z/memcore/record"
)

// OpenAIConfig configures the OpenAI-style provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

var _ BatchGateway = (*OpenAIGateway)(nil)

// OpenAIGateway produces embeddings via the OpenAI embeddings API.
type OpenAIGateway struct {
	client    openai.Client
	model     openai.EmbeddingModel
	dimension int
}

func NewOpenAIGateway(cfg OpenAIConfig) *OpenAIGateway {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 1536
	}

	return &OpenAIGateway{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

func (g *OpenAIGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: g.model,
	})
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	if len(resp.Data) == 0 {
		return nil, goerr.Wrap(record.ErrProvider, "empty embedding response", goerr.Value("model", g.model))
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

func (g *OpenAIGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := g.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: g.model,
	})
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, goerr.Wrap(record.ErrProvider, "embedding count mismatch",
			goerr.Value("want", len(texts)), goerr.Value("got", len(resp.Data)))
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = toFloat32(d.Embedding)
	}
	return out, nil
}

func (g *OpenAIGateway) Dimension() int {
	return g.dimension
}

func wrapOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return goerr.Wrap(record.ErrRateLimited, "openai embeddings", goerr.Value("cause", err.Error()))
	}
	return goerr.Wrap(record.ErrProvider, "openai embeddings", goerr.Value("cause", err.Error()))
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
