package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/openmemory/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, content string, created time.Time) model.Record {
	return model.Record{
		ID:         id,
		Content:    content,
		Importance: 0.5,
		Tags:       []string{},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	rec := model.Record{
		ID:         "01HZX0000000000000000000AA",
		UserID:     "alice",
		Content:    "User prefers docker compose",
		Summary:    "deploy pref",
		Importance: 0.9,
		Tags:       []string{"docker", "deploy"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != rec.Content || got.Summary != rec.Summary || got.UserID != "alice" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Importance != 0.9 {
		t.Errorf("expected importance 0.9, got %v", got.Importance)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "docker" || got.Tags[1] != "deploy" {
		t.Errorf("tag order not preserved: %v", got.Tags)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps lost precision: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	rec := testRecord("a", "v1", now)
	s.Put(ctx, rec)

	rec.Content = "v2"
	rec.Importance = 1.0
	rec.UpdatedAt = now.Add(time.Second)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, _ := s.Get(ctx, "a")
	if got.Content != "v2" || got.Importance != 1.0 {
		t.Errorf("expected replaced record, got %+v", got)
	}
	if !got.UpdatedAt.Equal(now.Add(time.Second)) {
		t.Errorf("expected updated_at bump, got %v", got.UpdatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, testRecord("a", "data", time.Now().UTC()))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := testRecord("a", "alpha", base)
	b := testRecord("b", "beta", base.Add(time.Minute))
	c := testRecord("c", "gamma", base.Add(2*time.Minute))
	c.UserID = "other"
	s.Put(ctx, a)
	s.Put(ctx, b)
	s.Put(ctx, c)

	all, err := s.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].ID != "c" || all[1].ID != "b" || all[2].ID != "a" {
		t.Errorf("expected newest first, got %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}

	other, _ := s.List(ctx, ListParams{UserID: "other"})
	if len(other) != 1 || other[0].ID != "c" {
		t.Errorf("expected only user 'other', got %+v", other)
	}

	page, _ := s.List(ctx, ListParams{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("expected second page to be b, got %+v", page)
	}
}

func TestListTieBreaksByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	s.Put(ctx, testRecord("a", "x", now))
	s.Put(ctx, testRecord("b", "y", now))

	list, _ := s.List(ctx, ListParams{})
	if len(list) != 2 || list[0].ID != "b" {
		t.Errorf("expected id descending on equal created_at, got %+v", list)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "metadata.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestExportAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC()
	s.Put(ctx, testRecord("b", "beta", base.Add(time.Second)))
	s.Put(ctx, testRecord("a", "alpha", base))

	exported, err := s.ExportAll(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(exported) != 2 || exported[0].ID != "a" {
		t.Fatalf("expected oldest first, got %+v", exported)
	}
}
