// Package store provides the storage interfaces the engine depends on, a
// SQLite metadata store, a SQLite FTS5 lexical index, and in-memory
// implementations of both for tests.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/rcliao/openmemory/internal/model"
)

// ErrNotFound is returned when an id is absent from a store.
var ErrNotFound = errors.New("memory not found")

// ListParams holds parameters for listing records from the metadata store.
type ListParams struct {
	UserID string // empty means all users
	Limit  int
	Offset int
}

// MetadataStore is the system of record. It holds the full record and must
// persist it until explicitly deleted.
type MetadataStore interface {
	// Put inserts or replaces the record with r.ID.
	Put(ctx context.Context, r model.Record) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (model.Record, error)

	// Delete removes the record, returning ErrNotFound if it was absent.
	Delete(ctx context.Context, id string) error

	// List returns records ordered by created_at descending, then id descending.
	List(ctx context.Context, p ListParams) ([]model.Record, error)

	// Close releases resources.
	Close() error
}

// Document is what the lexical index stores for a record.
type Document struct {
	ID      string
	UserID  string
	Content string
	Summary string
	Tags    []string
}

// DocumentOf projects the indexed fields out of a record.
func DocumentOf(r model.Record) Document {
	return Document{
		ID:      r.ID,
		UserID:  r.UserID,
		Content: r.Content,
		Summary: r.Summary,
		Tags:    r.Tags,
	}
}

// Hit is one lexical match. Relevance is only comparable within a single
// query's result set; larger is better.
type Hit struct {
	ID        string
	Relevance float64
}

// LexicalIndex is the full-text search backend.
type LexicalIndex interface {
	// Index adds the document, fully replacing any existing entry for d.ID.
	Index(ctx context.Context, d Document) error

	// Remove deletes the entry for id. Removing an absent id is not an error.
	Remove(ctx context.Context, id string) error

	// Query returns up to topK hits ordered by relevance descending.
	// An empty userID searches every user.
	Query(ctx context.Context, text, userID string, topK int) ([]Hit, error)

	// Close releases resources.
	Close() error
}

// rankHits orders accumulated relevance by score descending, then id, and
// keeps the first topK.
func rankHits(rel map[string]float64, topK int) []Hit {
	hits := make([]Hit, 0, len(rel))
	for id, r := range rel {
		hits = append(hits, Hit{ID: id, Relevance: r})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
