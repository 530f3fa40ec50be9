package responder

import (
	"math"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
)

// ScoringVersion identifies the confidence heuristic below. Bump it whenever
// a constant changes so stored scores stay comparable.
const ScoringVersion = "heuristic-v1"

// ConfidenceInput is everything the confidence heuristic looks at.
type ConfidenceInput struct {
	Classification model.Classification
	Retrieved      []model.RetrievedCase
	// Grounded is set when a real manuscript record backed the reply.
	Grounded bool
	// Lexical enables the mean-relevance bonus; Jaccard scores are on a
	// comparable scale across queries, cosine scores are not.
	Lexical bool
}

// ScoreConfidence is additive and capped at 1.0.
//
//	ungrounded: 0.5 base, +0.2 with cases (+ mean relevance * 0.2 when lexical), +0.1 valid category
//	grounded:   0.7 base, +0.15 with cases, +0.15 valid category
func ScoreConfidence(in ConfidenceInput) float64 {
	var conf float64
	hasCases := len(in.Retrieved) > 0
	validCategory := in.Classification.Category.Valid()

	if in.Grounded {
		conf = 0.7
		if hasCases {
			conf += 0.15
		}
		if validCategory {
			conf += 0.15
		}
		return math.Min(conf, 1.0)
	}

	conf = 0.5
	if hasCases {
		conf += 0.2
		if in.Lexical {
			var sum float64
			for _, c := range in.Retrieved {
				sum += c.RelevanceScore
			}
			conf += sum / float64(len(in.Retrieved)) * 0.2
		}
	}
	if validCategory {
		conf += 0.1
	}
	return math.Min(conf, 1.0)
}
