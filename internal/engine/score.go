package engine

import (
	"math"
	"time"

	"github.com/rcliao/openmemory/internal/store"
)

// Fixed weights of the importance/recency term.
const (
	ImportanceWeight = 0.6
	RecencyWeight    = 0.4

	// RecencyDecayDays is the e-folding time of the recency signal.
	RecencyDecayDays = 30.0
)

// Weights blends the lexical term with the importance/recency term.
type Weights struct {
	Lexical  float64 `yaml:"lexical"`
	Metadata float64 `yaml:"metadata"`
}

// DefaultWeights weighs both terms equally.
var DefaultWeights = Weights{Lexical: 0.5, Metadata: 0.5}

// Recency is exp(-age_days/30). Negative ages from clock skew count as zero.
func Recency(createdAt, at time.Time) float64 {
	age := at.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	days := age.Hours() / 24
	return math.Exp(-days / RecencyDecayDays)
}

// Score is the importance/recency term: importance*0.6 + recency*0.4.
func Score(importance float64, createdAt, at time.Time) float64 {
	return importance*ImportanceWeight + Recency(createdAt, at)*RecencyWeight
}

// Composite blends a normalized lexical relevance in [0,1] with Score.
func (w Weights) Composite(lexical, metadata float64) float64 {
	return lexical*w.Lexical + metadata*w.Metadata
}

// normalizeRelevance scales raw relevance into [0,1] by the best hit of the
// query, so raw index scales never dominate the blend.
func normalizeRelevance(hits []store.Hit) map[string]float64 {
	var best float64
	for _, h := range hits {
		if h.Relevance > best {
			best = h.Relevance
		}
	}
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		if best <= 0 || h.Relevance <= 0 {
			out[h.ID] = 0
			continue
		}
		out[h.ID] = h.Relevance / best
	}
	return out
}
