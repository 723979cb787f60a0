package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/openmemory/internal/model"
)

// SQLiteStore implements MetadataStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// openDB opens or creates a SQLite database at the given path.
func openDB(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// NewSQLiteStore opens or creates the metadata database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL,
		summary     TEXT,
		importance  REAL NOT NULL DEFAULT 0.5,
		tags        TEXT NOT NULL DEFAULT '[]',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, r model.Record) error {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	var summary *string
	if r.Summary != "" {
		summary = &r.Summary
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, content, summary, importance, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id,
		   content = excluded.content,
		   summary = excluded.summary,
		   importance = excluded.importance,
		   tags = excluded.tags,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		r.ID, r.UserID, r.Content, summary, r.Importance, string(tagsJSON),
		r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put memory: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, summary, importance, tags, created_at, updated_at
		 FROM memories WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get memory: %w", err)
	}
	return r, nil
}

// Delete hard-deletes a record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	var where []string
	var args []interface{}
	if p.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, p.UserID)
	}

	query := `SELECT id, user_id, content, summary, importance, tags, created_at, updated_at FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.Record, error) {
	var r model.Record
	var summary sql.NullString
	var tagsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&r.ID, &r.UserID, &r.Content, &summary, &r.Importance, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}

	if summary.Valid {
		r.Summary = summary.String
	}
	if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
		return r, fmt.Errorf("decode tags for %s: %w", r.ID, err)
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return r, nil
}
