package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"

	errx "github.com/manuscript-desk-poc/server/internal/core/error"
)

// GeminiEmbedder implements the Eino embedding.Embedder interface on top of
// the genai Models.EmbedContent API.
type GeminiEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

var _ embedding.Embedder = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model, taskType: "SEMANTIC_SIMILARITY"}
}

func (e *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: e.taskType})
	if err != nil {
		return nil, errx.ModelCall(fmt.Errorf("embed %d texts with %s: %w", len(texts), e.model, err))
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, errx.ModelCall(fmt.Errorf("embed: expected %d vectors, got %d", len(texts), got))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, errx.ModelCall(fmt.Errorf("embed: missing vector %d", i))
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}
