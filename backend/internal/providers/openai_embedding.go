package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/orderflow/orderflow/internal/coreerr"
)

// OpenAIEmbedding implements EmbeddingProviderPort. Dimension is fixed at
// construction from tenant config. Embed compares it with the length of the
// returned vector and rejects a mismatch; the check runs on the response, so
// the request has already been sent when a mismatch is found.
type OpenAIEmbedding struct {
	client openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedding(apiKey, baseURL, model string, dim int) *OpenAIEmbedding {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedding{client: openai.NewClient(opts...), model: model, dim: dim}
}

func (e *OpenAIEmbedding) Dimension() int { return e.dim }

func (e *OpenAIEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ProviderTimeout, "embedding call failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, coreerr.New(coreerr.LLMOutputInvalid, "embedding response had no data")
	}
	raw := resp.Data[0].Embedding
	if len(raw) != e.dim {
		return nil, coreerr.New(coreerr.LLMOutputInvalid,
			fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(raw), e.dim))
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
