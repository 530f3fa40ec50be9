package retrieval

import (
	"context"
	"strings"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "as": {},
	"is": {}, "was": {}, "are": {}, "been": {}, "be": {}, "i": {}, "my": {}, "me": {},
	"you": {}, "your": {}, "it": {}, "its": {}, "this": {}, "that": {},
}

// LexicalRetriever scores cases by Jaccard overlap of word sets.
type LexicalRetriever struct {
	store CaseSource
}

func NewLexicalRetriever(store CaseSource) *LexicalRetriever {
	return &LexicalRetriever{store: store}
}

func (r *LexicalRetriever) Mode() Mode { return ModeLexical }

func (r *LexicalRetriever) Search(ctx context.Context, query string, category model.Category, topK int) ([]model.RetrievedCase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	space := r.store.SearchSpace(category)
	if len(space) == 0 {
		return []model.RetrievedCase{}, nil
	}
	q := tokenize(query)
	scores := make([]float64, len(space))
	for i, c := range space {
		scores[i] = jaccard(q, tokenize(c.Query))
	}
	return rank(space, scores, topK), nil
}

// tokenize splits on whitespace, lower-cases and drops stop words.
// Punctuation stays attached to its word.
func tokenize(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|, and 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
