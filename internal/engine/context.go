package engine

import (
	"context"
	"math"
)

// DefaultContextBudget is the token budget used when none is given.
const DefaultContextBudget = 1000

// charsPerToken is the rough proxy used to turn a token budget into bytes.
const charsPerToken = 4

// minExcerpt is the smallest remaining budget worth filling with a truncated
// memory.
const minExcerpt = 100

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query  string
	UserID string
	Tags   []string
	Budget int // tokens
}

// ContextMemory is one memory packed into an assembled context.
type ContextMemory struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags"`
	Score   float64  `json:"score"`
	Excerpt bool     `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget   int             `json:"budget"`
	Used     int             `json:"used"`
	Memories []ContextMemory `json:"memories"`
}

// Context greedily packs the best-ranked memories for a query into a token
// budget. The last memory that does not fit is excerpted if enough budget is
// left for it to be useful.
func (e *Engine) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	charBudget := budget * charsPerToken

	results, err := e.Search(ctx, SearchParams{
		Query:  p.Query,
		UserID: p.UserID,
		Tags:   p.Tags,
		Limit:  e.opts.MaxSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	out := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	used := 0
	for _, r := range results {
		m := ContextMemory{
			ID:      r.ID,
			Content: r.Content,
			Summary: r.Summary,
			Tags:    r.Tags,
			Score:   math.Round(r.Score*1000) / 1000,
		}
		if used+len(r.Content) <= charBudget {
			out.Memories = append(out.Memories, m)
			used += len(r.Content)
			continue
		}
		remaining := charBudget - used
		if remaining >= minExcerpt {
			m.Content = truncate(r.Content, remaining) + "..."
			m.Excerpt = true
			out.Memories = append(out.Memories, m)
			used += remaining
		}
		break
	}
	out.Used = (used + charsPerToken - 1) / charsPerToken
	return out, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
