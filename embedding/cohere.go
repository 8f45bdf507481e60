package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

const defaultCohereURL = "https://api.cohere.com/v1/embed"

// CohereConfig configures the Cohere-style provider.
type CohereConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Client    *http.Client
}

var _ BatchGateway = (*CohereGateway)(nil)

// CohereGateway produces embeddings via the Cohere embed API.
type CohereGateway struct {
	apiKey    string
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

func NewCohereGateway(cfg CohereConfig) *CohereGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultCohereURL
	}
	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 1024
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	return &CohereGateway{
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client:    client,
	}
}

func (g *CohereGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *CohereGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"texts":      texts,
		"model":      g.model,
		"input_type": "search_document",
	})
	if err != nil {
		return nil, goerr.Wrap(err, "encode embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "build embed request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(record.ErrProvider, "cohere embed", goerr.Value("cause", err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, goerr.Wrap(record.ErrRateLimited, "cohere embed", goerr.Value("status", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.Wrap(record.ErrProvider, "cohere embed",
			goerr.Value("status", resp.StatusCode), goerr.Value("body", string(msg)))
	}

	var parsed struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, goerr.Wrap(record.ErrProvider, "decode embed response", goerr.Value("cause", err.Error()))
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, goerr.Wrap(record.ErrProvider, "embedding count mismatch",
			goerr.Value("want", len(texts)), goerr.Value("got", len(parsed.Embeddings)))
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, vec := range parsed.Embeddings {
		out[i] = toFloat32(vec)
	}
	return out, nil
}

func (g *CohereGateway) Dimension() int {
	return g.dimension
}
