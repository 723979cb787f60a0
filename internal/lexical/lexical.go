// Package lexical holds the text analysis shared by the lexical index
// adapters: tokenizing, stopwords, stemming, and query construction.
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "what": true,
	"when": true, "with": true,
}

// IsStopword reports whether a lowercase token carries no retrieval signal.
func IsStopword(tok string) bool {
	return stopwords[tok]
}

// Tokens splits text on anything that is not a letter or digit and lowercases
// the pieces.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// QueryTerms returns the distinct tokens of a query with stopwords removed.
// A query made only of stopwords keeps them, so it still matches something.
func QueryTerms(query string) []string {
	toks := Tokens(query)
	var terms []string
	seen := map[string]bool{}
	for _, t := range toks {
		if IsStopword(t) || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}
	return terms
}

// Stem strips a few common English suffixes. It only needs to be consistent
// between indexing and querying.
func Stem(tok string) string {
	if len(tok) > 4 && strings.HasSuffix(tok, "ies") {
		tok = tok[:len(tok)-3] + "y"
	} else if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		tok = tok[:len(tok)-1]
	}
	for _, suf := range []string{"ment", "ing", "ed"} {
		if len(tok) > len(suf)+2 && strings.HasSuffix(tok, suf) {
			return tok[:len(tok)-len(suf)]
		}
	}
	return tok
}

// MatchExpr builds an FTS5 MATCH expression that ORs every query term as a
// quoted prefix query. Terms are letters and digits only, so quoting is safe.
// It returns "" when the query has no terms.
func MatchExpr(query string) string {
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `"` + t + `"*`
	}
	return strings.Join(parts, " OR ")
}

// MinSubstring is the shortest query also matched as a raw substring. It is
// the width of the trigrams the FTS5 substring table is built from.
const MinSubstring = 3

// SubstringQuery returns the trimmed, lowercased query when it is long enough
// for substring matching, and "" otherwise. Unlike QueryTerms it keeps
// punctuation and word fragments.
func SubstringQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < MinSubstring {
		return ""
	}
	return q
}

// PhraseExpr quotes s as a single FTS5 string, doubling embedded quotes.
func PhraseExpr(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SubstringBody is the text a document is substring-matched against.
func SubstringBody(content, summary string, tags []string) string {
	return content + "\n" + summary + "\n" + strings.Join(tags, " ")
}
