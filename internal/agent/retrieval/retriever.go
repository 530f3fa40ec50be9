package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const DefaultTopK = 3

// Mode names a similarity strategy.
type Mode string

const (
	ModeLexical   Mode = "lexical"
	ModeEmbedding Mode = "embedding"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLexical:
		return ModeLexical, nil
	case ModeEmbedding:
		return ModeEmbedding, nil
	}
	return "", fmt.Errorf("unknown retrieval mode %q", s)
}

// CaseSource is the read side of the case store.
type CaseSource interface {
	SearchSpace(category model.Category) []model.Case
	All() []model.Case
	Version() uint64
}

// Retriever ranks historical cases against a query. Results are sorted by
// descending relevance, ties keep corpus order, and len(results) <= topK.
type Retriever interface {
	Search(ctx context.Context, query string, category model.Category, topK int) ([]model.RetrievedCase, error)
	Mode() Mode
}

// New selects the strategy. Embedding mode without an embedder degrades to
// lexical.
func New(mode Mode, store CaseSource, embedder embedding.Embedder, opts ...EmbeddingOption) Retriever {
	if mode == ModeEmbedding {
		if embedder != nil {
			return NewEmbeddingRetriever(store, embedder, opts...)
		}
		logx.Warn().Msg("embedding retrieval requested without an embedder, using lexical retrieval")
	}
	return NewLexicalRetriever(store)
}

// rank orders scored cases and cuts them to topK.
func rank(space []model.Case, scores []float64, topK int) []model.RetrievedCase {
	if topK <= 0 {
		topK = DefaultTopK
	}
	out := make([]model.RetrievedCase, len(space))
	for i, c := range space {
		out[i] = model.RetrievedCase{Case: c, RelevanceScore: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
