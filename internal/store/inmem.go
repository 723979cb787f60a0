package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rcliao/openmemory/internal/lexical"
	"github.com/rcliao/openmemory/internal/model"
)

// MemStore is a process-local MetadataStore. Records are copied on the way in
// and out so callers never share tag slices with the store.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]model.Record
}

// NewMemStore creates an empty in-memory metadata store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]model.Record)}
}

func (m *MemStore) Put(_ context.Context, r model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r.Clone()
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func (m *MemStore) List(_ context.Context, p ListParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	all := make([]model.Record, 0, len(m.records))
	for _, r := range m.records {
		if p.UserID != "" && r.UserID != p.UserID {
			continue
		}
		all = append(all, r.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if p.Offset >= len(all) {
		return []model.Record{}, nil
	}
	all = all[p.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Len returns the number of stored records.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemStore) Close() error { return nil }

// MemIndex is a process-local LexicalIndex scoring with BM25 over the same
// analysis the FTS5 index uses. Content is counted twice to mirror the FTS5
// column weight, and queries long enough for substring matching add the
// occurrence count of the raw query, like the FTS5 trigram table.
type MemIndex struct {
	mu   sync.RWMutex
	docs map[string]memDoc
}

type memDoc struct {
	userID string
	terms  []string
	body   string // lowercased, for substring matches
}

// NewMemIndex creates an empty in-memory lexical index.
func NewMemIndex() *MemIndex {
	return &MemIndex{docs: make(map[string]memDoc)}
}

func (x *MemIndex) Index(_ context.Context, d Document) error {
	content := lexical.Analyze(d.Content)
	terms := make([]string, 0, 2*len(content))
	terms = append(terms, content...)
	terms = append(terms, content...)
	terms = append(terms, lexical.Analyze(d.Summary)...)
	terms = append(terms, lexical.Analyze(strings.Join(d.Tags, " "))...)
	body := strings.ToLower(lexical.SubstringBody(d.Content, d.Summary, d.Tags))

	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs[d.ID] = memDoc{userID: d.UserID, terms: terms, body: body}
	return nil
}

func (x *MemIndex) Remove(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, id)
	return nil
}

func (x *MemIndex) Query(_ context.Context, text, userID string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 20
	}
	sub := lexical.SubstringQuery(text)

	rel := map[string]float64{}
	x.mu.RLock()
	docs := make([]lexical.Doc, 0, len(x.docs))
	for id, d := range x.docs {
		if userID != "" && d.userID != userID {
			continue
		}
		docs = append(docs, lexical.Doc{ID: id, Terms: d.terms})
		if sub != "" {
			if n := strings.Count(d.body, sub); n > 0 {
				rel[id] += float64(n)
			}
		}
	}
	x.mu.RUnlock()

	for id, s := range lexical.Score(text, docs) {
		rel[id] += s
	}
	return rankHits(rel, topK), nil
}

// Has reports whether id is indexed.
func (x *MemIndex) Has(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.docs[id]
	return ok
}

func (x *MemIndex) Close() error { return nil }
