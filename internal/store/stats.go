package store

import (
	"context"
	"os"
)

// Stats holds per-store counts. Records and Indexed differ only while a
// mutation is in flight or after an unreconciled failure.
type Stats struct {
	MetadataPath  string      `json:"metadata_path"`
	MetadataBytes int64       `json:"metadata_bytes"`
	IndexPath     string      `json:"index_path"`
	IndexBytes    int64       `json:"index_bytes"`
	Records       int         `json:"records"`
	Indexed       int         `json:"indexed"`
	Users         []UserStats `json:"users"`
}

// UserStats holds per-user record counts. The empty user id is global.
type UserStats struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// CollectStats gathers counts from both SQLite stores.
func CollectStats(ctx context.Context, meta *SQLiteStore, idx *FTSIndex) (*Stats, error) {
	st := &Stats{MetadataPath: meta.Path(), IndexPath: idx.Path(), Users: []UserStats{}}

	if info, err := os.Stat(meta.Path()); err == nil {
		st.MetadataBytes = info.Size()
	}
	if info, err := os.Stat(idx.Path()); err == nil {
		st.IndexBytes = info.Size()
	}

	if err := meta.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.Records); err != nil {
		return st, err
	}
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Indexed); err != nil {
		return st, err
	}

	rows, err := meta.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) AS cnt
		FROM memories
		GROUP BY user_id ORDER BY cnt DESC, user_id ASC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserStats
		if err := rows.Scan(&u.UserID, &u.Count); err != nil {
			return st, err
		}
		st.Users = append(st.Users, u)
	}
	return st, rows.Err()
}
