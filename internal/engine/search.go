package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/rcliao/openmemory/internal/model"
	"github.com/rcliao/openmemory/internal/store"
)

var (
	errEmptyQuery    = errors.New("query must not be empty")
	errNegativeLimit = errors.New("limit must not be negative")
)

// SearchParams holds the inputs of Search.
type SearchParams struct {
	Query  string
	Limit  int    // 0 means the default; values above the maximum are clamped
	UserID string // empty searches every user
	Tags   []string
	// At is the reference time for recency. Zero means now.
	At time.Time
}

// ListParams holds the inputs of List.
type ListParams struct {
	Limit  int
	UserID string
	Tags   []string
}

// Result is a ranked search hit. Its fields come from the metadata store.
type Result struct {
	model.Record
	Score float64 `json:"score"`
}

// tagFilter matches records whose tags satisfy every pattern.
type tagFilter []glob.Glob

func compileTags(op string, patterns []string) (tagFilter, error) {
	var f tagFilter
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, validationErr(op, "tags", fmt.Errorf("bad tag pattern %q: %w", p, err))
		}
		f = append(f, g)
	}
	return f, nil
}

func (f tagFilter) match(tags []string) bool {
	for _, g := range f {
		ok := false
		for _, t := range tags {
			if g.Match(t) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func clampLimit(op string, limit, def, ceiling int) (int, error) {
	if limit < 0 {
		return 0, validationErr(op, "limit", errNegativeLimit)
	}
	if limit == 0 {
		return def, nil
	}
	return min(limit, ceiling), nil
}

// searchAttempts bounds how often Search waits out concurrent mutations of
// its candidates before re-reading them under their locks.
const searchAttempts = 3

// Search ranks memories for a free-text query. Lexical candidates are
// over-fetched, joined with metadata, and re-ranked by the composite score.
// Candidates whose metadata is missing are dropped; any other store failure
// fails the whole query.
func (e *Engine) Search(ctx context.Context, p SearchParams) ([]Result, error) {
	const op = "search"

	if strings.TrimSpace(p.Query) == "" {
		return nil, validationErr(op, "query", errEmptyQuery)
	}
	limit, err := clampLimit(op, p.Limit, e.opts.DefaultSearchLimit, e.opts.MaxSearchLimit)
	if err != nil {
		return nil, err
	}
	tags, err := compileTags(op, p.Tags)
	if err != nil {
		return nil, err
	}
	at := p.At
	if at.IsZero() {
		at = e.now()
	}

	for attempt := 1; ; attempt++ {
		results, busy, err := e.candidates(ctx, op, p, tags, at, limit*e.opts.OverFetch, attempt == searchAttempts)
		if err != nil {
			return nil, err
		}
		if len(busy) > 0 {
			e.log.Debug("search candidates busy, retrying", "ids", len(busy), "attempt", attempt)
			if err := e.settle(ctx, busy); err != nil {
				return nil, storeErr(op, "", err)
			}
			continue
		}

		sort.Slice(results, func(i, j int) bool {
			a, b := results[i], results[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		if len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}
}

// candidates collects up to fetch scored records in lexical order. The index
// is queried in growing pages until enough hits survive the metadata join and
// the filters, or the index has no more. A hit whose id was mutated while it
// was read is reported in busy, or with final set, re-read under its lock.
func (e *Engine) candidates(ctx context.Context, op string, p SearchParams, tags tagFilter, at time.Time, fetch int, final bool) ([]Result, []string, error) {
	snap := e.activity.snapshot()
	for topK := fetch; ; topK *= 2 {
		var hits []store.Hit
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			hits, err = e.index.Query(ctx, p.Query, p.UserID, topK)
			return err
		})
		if err != nil {
			return nil, nil, storeErr(op, "", err)
		}
		lex := normalizeRelevance(hits)

		var busy []string
		results := make([]Result, 0, min(len(hits), fetch))
		for _, h := range hits {
			if len(results) == fetch {
				break
			}
			rec, err := e.lookup(ctx, h.ID)
			if !e.activity.settled(snap, h.ID) {
				if !final {
					busy = append(busy, h.ID)
					continue
				}
				rec, err = e.readLocked(ctx, h.ID)
			}
			if errors.Is(err, store.ErrNotFound) {
				e.log.Debug("dropping index hit without metadata", "id", h.ID)
				continue
			}
			if err != nil {
				return nil, nil, storeErr(op, h.ID, err)
			}
			if p.UserID != "" && rec.UserID != p.UserID {
				continue
			}
			if !tags.match(rec.Tags) {
				continue
			}
			results = append(results, Result{
				Record: rec,
				Score:  e.opts.Weights.Composite(lex[h.ID], Score(rec.Importance, rec.CreatedAt, at)),
			})
		}
		if len(busy) > 0 {
			return nil, busy, nil
		}
		if len(results) >= fetch || len(hits) < topK {
			return results, nil, nil
		}
	}
}

// Get returns one memory by id.
func (e *Engine) Get(ctx context.Context, id string) (model.Record, error) {
	const op = "get"
	if id == "" {
		return model.Record{}, validationErr(op, "id", errEmptyID)
	}
	rec, err := e.read(ctx, id)
	if err != nil {
		return model.Record{}, storeErr(op, id, err)
	}
	return rec, nil
}

// List returns memories newest first, optionally filtered by user and tag
// patterns. It reads only the metadata store. Records a mutation touched
// during the page read are re-read once the mutation has finished.
func (e *Engine) List(ctx context.Context, p ListParams) ([]model.Record, error) {
	const op = "list"

	limit, err := clampLimit(op, p.Limit, e.opts.DefaultListLimit, e.opts.MaxListLimit)
	if err != nil {
		return nil, err
	}
	tags, err := compileTags(op, p.Tags)
	if err != nil {
		return nil, err
	}

	page := limit
	if len(tags) > 0 {
		page = limit * e.opts.OverFetch
	}

	out := make([]model.Record, 0, limit)
	for offset := 0; len(out) < limit; offset += page {
		snap := e.activity.snapshot()
		var recs []model.Record
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			recs, err = e.meta.List(ctx, store.ListParams{UserID: p.UserID, Limit: page, Offset: offset})
			return err
		})
		if err != nil {
			return nil, storeErr(op, "", err)
		}
		for _, r := range recs {
			if id := r.ID; !e.activity.settled(snap, id) {
				var err error
				r, err = e.readLocked(ctx, id)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, storeErr(op, id, err)
				}
			}
			if tags.match(r.Tags) {
				out = append(out, r)
				if len(out) == limit {
					break
				}
			}
		}
		if len(recs) < page {
			break
		}
	}
	return out, nil
}
