package store

import (
	"context"
	"fmt"

	"github.com/rcliao/openmemory/internal/model"
)

// ExportAll returns every record, optionally filtered by user, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context, userID string) ([]model.Record, error) {
	query := `SELECT id, user_id, content, summary, importance, tags, created_at, updated_at FROM memories`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export memories: %w", err)
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
