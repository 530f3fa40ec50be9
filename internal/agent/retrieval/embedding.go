package retrieval

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const (
	defaultBatchSize   = 16
	defaultConcurrency = 4
)

type EmbeddingOption func(*EmbeddingRetriever)

// WithBatching bounds how many texts go into one embedding call and how many
// calls run at once while the corpus is indexed.
func WithBatching(batchSize, concurrency int) EmbeddingOption {
	return func(r *EmbeddingRetriever) {
		if batchSize > 0 {
			r.batchSize = batchSize
		}
		if concurrency > 0 {
			r.concurrency = concurrency
		}
	}
}

// EmbeddingRetriever scores cases by cosine similarity of embeddings. Case
// vectors are computed once per corpus version.
type EmbeddingRetriever struct {
	store       CaseSource
	embedder    embedding.Embedder
	fallback    *LexicalRetriever
	batchSize   int
	concurrency int

	mu      sync.Mutex
	version uint64
	vectors map[string][]float64
}

func NewEmbeddingRetriever(store CaseSource, embedder embedding.Embedder, opts ...EmbeddingOption) *EmbeddingRetriever {
	r := &EmbeddingRetriever{
		store:       store,
		embedder:    embedder,
		fallback:    NewLexicalRetriever(store),
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *EmbeddingRetriever) Mode() Mode { return ModeEmbedding }

// Search falls back to lexical scoring when the embedding backend fails.
func (r *EmbeddingRetriever) Search(ctx context.Context, query string, category model.Category, topK int) ([]model.RetrievedCase, error) {
	space := r.store.SearchSpace(category)
	if len(space) == 0 {
		return []model.RetrievedCase{}, nil
	}

	vectors, err := r.index(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Warn().Err(err).Msg("case embeddings unavailable, using lexical retrieval")
		return r.fallback.Search(ctx, query, category, topK)
	}

	qv, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil || len(qv) != 1 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Warn().Err(err).Msg("query embedding failed, using lexical retrieval")
		return r.fallback.Search(ctx, query, category, topK)
	}
	q := normalize(qv[0])

	scores := make([]float64, len(space))
	for i, c := range space {
		scores[i] = cosine(q, vectors[c.ID])
	}
	return rank(space, scores, topK), nil
}

// Warm builds the case index ahead of the first query.
func (r *EmbeddingRetriever) Warm(ctx context.Context) error {
	_, err := r.index(ctx)
	return err
}

func (r *EmbeddingRetriever) index(ctx context.Context) (map[string][]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version := r.store.Version()
	if r.vectors != nil && r.version == version {
		return r.vectors, nil
	}

	cases := r.store.All()
	vecs := make([][]float64, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for start := 0; start < len(cases); start += r.batchSize {
		end := min(start+r.batchSize, len(cases))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range cases[start:end] {
				texts = append(texts, c.Query)
			}
			out, err := r.embedder.EmbedStrings(gctx, texts)
			if err != nil {
				return err
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embedding batch %d: expected %d vectors, got %d", start/r.batchSize, len(texts), len(out))
			}
			for i, v := range out {
				vecs[start+i] = normalize(v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("index case corpus: %w", err)
	}

	index := make(map[string][]float64, len(cases))
	for i, c := range cases {
		index[c.ID] = vecs[i]
	}
	r.vectors = index
	r.version = version
	logx.Info().Int("cases", len(cases)).Uint64("version", version).Msg("case embeddings indexed")
	return index, nil
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// cosine expects normalised vectors and clamps to [0,1].
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return math.Max(0, math.Min(1, dot))
}
