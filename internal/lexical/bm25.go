package lexical

import (
	"math"
	"strings"
)

// BM25 parameters, matching the FTS5 defaults.
const (
	K1 = 1.2
	B  = 0.75
)

// Doc is a tokenized document as seen by the scorer.
type Doc struct {
	ID    string
	Terms []string // stemmed tokens
}

// Analyze tokenizes and stems text for indexing.
func Analyze(text string) []string {
	toks := Tokens(text)
	for i, t := range toks {
		toks[i] = Stem(t)
	}
	return toks
}

// Score computes Okapi BM25 for every doc that matches at least one query
// term. Query terms match document terms by prefix, like the FTS5 prefix
// queries built by MatchExpr. Docs with no match are omitted.
func Score(query string, docs []Doc) map[string]float64 {
	terms := QueryTerms(query)
	for i, t := range terms {
		terms[i] = Stem(t)
	}
	if len(terms) == 0 || len(docs) == 0 {
		return map[string]float64{}
	}

	var total int
	for _, d := range docs {
		total += len(d.Terms)
	}
	avgLen := float64(total) / float64(len(docs))
	if avgLen == 0 {
		avgLen = 1
	}

	n := float64(len(docs))
	tf := make([]map[string]int, len(docs))
	df := make(map[string]int, len(terms))
	for i, d := range docs {
		tf[i] = make(map[string]int, len(terms))
		for _, q := range terms {
			for _, t := range d.Terms {
				if strings.HasPrefix(t, q) {
					tf[i][q]++
				}
			}
			if tf[i][q] > 0 {
				df[q]++
			}
		}
	}

	out := make(map[string]float64)
	for i, d := range docs {
		var s float64
		matched := false
		dl := float64(len(d.Terms))
		for _, q := range terms {
			f := float64(tf[i][q])
			if f == 0 {
				continue
			}
			matched = true
			idf := math.Log((n - float64(df[q]) + 0.5) / (float64(df[q]) + 0.5))
			if idf <= 0 {
				idf = 1e-6
			}
			s += idf * (f * (K1 + 1)) / (f + K1*(1-B+B*dl/avgLen))
		}
		if matched {
			out[d.ID] = s
		}
	}
	return out
}
