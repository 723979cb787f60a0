package dispatch

import (
	"context"
	"time"

	"github.com/rcliao/openmemory/internal/engine"
	"github.com/rcliao/openmemory/internal/model"
)

// SaveResult is returned by the save tool.
type SaveResult struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is one ranked memory in a search result.
type SearchHit struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary,omitempty"`
	Tags       []string  `json:"tags"`
	Importance float64   `json:"importance"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchResult is returned by the search tool.
type SearchResult struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// ListResult is returned by the list tool.
type ListResult struct {
	Memories []model.Record `json:"memories"`
	Total    int            `json:"total"`
}

// GetResult is returned by the get tool.
type GetResult struct {
	Memory model.Record `json:"memory"`
}

// UpdateResult is returned by the update tool.
type UpdateResult struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeleteResult is returned by the delete tool.
type DeleteResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (d *Dispatcher) builtin() []*Tool {
	tagList := arrayProperty("Tags attached to the memory", stringProperty("tag"))
	tagFilter := arrayProperty("Glob patterns; every pattern must match one of the memory's tags", stringProperty("pattern"))
	userID := stringProperty("Owner partition; omit to address all users")
	id := stringProperty("Memory id (ULID)")

	return []*Tool{
		{
			Name:        "save",
			Description: "Store a new memory so it can be recalled by later searches.",
			InputSchema: objectSchema(map[string]any{
				"content":    stringProperty("The text to remember"),
				"summary":    stringProperty("Optional short summary"),
				"importance": numberProperty("Importance from 0.0 to 1.0, default 0.5", 0, 1),
				"tags":       tagList,
				"user_id":    userID,
			}, "content"),
			run: d.save,
		},
		{
			Name:        "search",
			Description: "Find memories relevant to a free-text query, ranked by relevance, importance and recency.",
			InputSchema: objectSchema(map[string]any{
				"query":   stringProperty("Free-text query"),
				"limit":   integerProperty("Maximum results, default 5, capped at 20", 0),
				"tags":    tagFilter,
				"user_id": userID,
			}, "query"),
			run: d.search,
		},
		{
			Name:        "list",
			Description: "List memories, newest first.",
			InputSchema: objectSchema(map[string]any{
				"limit":   integerProperty("Maximum results, default 20, capped at 100", 0),
				"tags":    tagFilter,
				"user_id": userID,
			}),
			run: d.list,
		},
		{
			Name:        "get",
			Description: "Fetch one memory by id.",
			InputSchema: objectSchema(map[string]any{"id": id}, "id"),
			run:         d.get,
		},
		{
			Name:        "update",
			Description: "Change fields of an existing memory. Omitted fields are left as they are.",
			InputSchema: objectSchema(map[string]any{
				"id":         id,
				"content":    stringProperty("Replacement text"),
				"summary":    stringProperty("Replacement summary"),
				"importance": numberProperty("Importance from 0.0 to 1.0", 0, 1),
				"tags":       tagList,
			}, "id"),
			run: d.update,
		},
		{
			Name:        "delete",
			Description: "Delete a memory by id.",
			InputSchema: objectSchema(map[string]any{"id": id}, "id"),
			run:         d.delete,
		},
	}
}

func (d *Dispatcher) save(ctx context.Context, a args) (any, error) {
	content, _, err := a.str("content", true)
	if err != nil {
		return nil, err
	}
	summary, _, err := a.str("summary", false)
	if err != nil {
		return nil, err
	}
	importance, err := a.number("importance")
	if err != nil {
		return nil, err
	}
	tags, _, err := a.strings("tags")
	if err != nil {
		return nil, err
	}
	userID, _, err := a.str("user_id", false)
	if err != nil {
		return nil, err
	}

	rec, err := d.eng.Create(ctx, engine.CreateParams{
		Content:    content,
		Summary:    summary,
		Importance: importance,
		Tags:       tags,
		UserID:     userID,
	})
	if err != nil {
		return nil, err
	}
	return SaveResult{ID: rec.ID, Status: "saved", CreatedAt: rec.CreatedAt}, nil
}

func (d *Dispatcher) search(ctx context.Context, a args) (any, error) {
	query, _, err := a.str("query", true)
	if err != nil {
		return nil, err
	}
	limit, err := a.integer("limit")
	if err != nil {
		return nil, err
	}
	tags, _, err := a.strings("tags")
	if err != nil {
		return nil, err
	}
	userID, _, err := a.str("user_id", false)
	if err != nil {
		return nil, err
	}

	results, err := d.eng.Search(ctx, engine.SearchParams{Query: query, Limit: limit, Tags: tags, UserID: userID})
	if err != nil {
		return nil, err
	}
	out := SearchResult{Query: query, Results: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchHit{
			ID:         r.ID,
			UserID:     r.UserID,
			Content:    r.Content,
			Summary:    r.Summary,
			Tags:       r.Tags,
			Importance: r.Importance,
			Score:      r.Score,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

func (d *Dispatcher) list(ctx context.Context, a args) (any, error) {
	limit, err := a.integer("limit")
	if err != nil {
		return nil, err
	}
	tags, _, err := a.strings("tags")
	if err != nil {
		return nil, err
	}
	userID, _, err := a.str("user_id", false)
	if err != nil {
		return nil, err
	}

	recs, err := d.eng.List(ctx, engine.ListParams{Limit: limit, Tags: tags, UserID: userID})
	if err != nil {
		return nil, err
	}
	return ListResult{Memories: recs, Total: len(recs)}, nil
}

func (d *Dispatcher) get(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	rec, err := d.eng.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return GetResult{Memory: rec}, nil
}

func (d *Dispatcher) update(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	var p engine.UpdateParams
	if s, ok, err := a.str("content", false); err != nil {
		return nil, err
	} else if ok {
		p.Content = &s
	}
	if s, ok, err := a.str("summary", false); err != nil {
		return nil, err
	} else if ok {
		p.Summary = &s
	}
	if p.Importance, err = a.number("importance"); err != nil {
		return nil, err
	}
	if tags, ok, err := a.strings("tags"); err != nil {
		return nil, err
	} else if ok {
		p.Tags = &tags
	}

	rec, err := d.eng.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	return UpdateResult{ID: rec.ID, Status: "updated", UpdatedAt: rec.UpdatedAt}, nil
}

func (d *Dispatcher) delete(ctx context.Context, a args) (any, error) {
	id, err := a.id("id")
	if err != nil {
		return nil, err
	}
	if err := d.eng.Delete(ctx, id); err != nil {
		return nil, err
	}
	return DeleteResult{ID: id, Status: "deleted"}, nil
}
