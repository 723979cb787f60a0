package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rcliao/openmemory/internal/lexical"
)

// FTSIndex implements LexicalIndex with two SQLite FTS5 tables kept in their
// own database file, separate from the metadata store: documents holds
// stemmed words, grams holds trigrams for substring recall.
type FTSIndex struct {
	db   *sql.DB
	path string
}

// Column weights passed to bm25(): id, user_id, content, summary, tags.
const bm25Weights = "0.0, 0.0, 2.0, 1.0, 1.0"

// NewFTSIndex opens or creates the index database at dbPath.
func NewFTSIndex(dbPath string) (*FTSIndex, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	idx := &FTSIndex{db: db, path: dbPath}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (x *FTSIndex) migrate() error {
	var hasGrams int
	err := x.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'grams'`).Scan(&hasGrams)
	if err != nil {
		return err
	}

	_, err = x.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
		id UNINDEXED,
		user_id UNINDEXED,
		content,
		summary,
		tags,
		tokenize = 'porter unicode61 remove_diacritics 2'
	)`)
	if err != nil {
		return err
	}

	// grams answers substring queries that start or end mid-word.
	_, err = x.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS grams USING fts5(
		id UNINDEXED,
		user_id UNINDEXED,
		body,
		tokenize = 'trigram'
	)`)
	if err != nil {
		return err
	}
	if hasGrams == 0 {
		_, err = x.db.Exec(`INSERT INTO grams (id, user_id, body)
			SELECT id, user_id, content || char(10) || summary || char(10) || tags FROM documents`)
	}
	return err
}

// Index replaces the entry for d.ID inside one transaction, so the old tokens
// never survive an update.
func (x *FTSIndex) Index(ctx context.Context, d Document) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"documents", "grams"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, d.ID); err != nil {
			return fmt.Errorf("clear document: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, content, summary, tags) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Content, d.Summary, strings.Join(d.Tags, " "))
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO grams (id, user_id, body) VALUES (?, ?, ?)`,
		d.ID, d.UserID, lexical.SubstringBody(d.Content, d.Summary, d.Tags))
	if err != nil {
		return fmt.Errorf("index document substrings: %w", err)
	}
	return tx.Commit()
}

// Remove deletes the entry for id.
func (x *FTSIndex) Remove(ctx context.Context, id string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"documents", "grams"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
			return fmt.Errorf("remove document: %w", err)
		}
	}
	return tx.Commit()
}

// Query runs a BM25-ranked word match and, for queries of at least
// lexical.MinSubstring characters, a trigram substring match. A document's
// relevance is the sum of both. FTS5's bm25() is negative with better matches
// more negative, so relevance is its negation.
func (x *FTSIndex) Query(ctx context.Context, text, userID string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 20
	}

	rel := map[string]float64{}
	if expr := lexical.MatchExpr(text); expr != "" {
		if err := x.match(ctx, rel, "documents", "-bm25(documents, "+bm25Weights+")", expr, userID, topK); err != nil {
			return nil, err
		}
	}
	if sub := lexical.SubstringQuery(text); sub != "" {
		if err := x.match(ctx, rel, "grams", "-bm25(grams)", lexical.PhraseExpr(sub), userID, topK); err != nil {
			return nil, err
		}
	}
	return rankHits(rel, topK), nil
}

func (x *FTSIndex) match(ctx context.Context, into map[string]float64, table, relevance, expr, userID string, topK int) error {
	where := []string{table + " MATCH ?"}
	args := []interface{}{expr}
	if userID != "" {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}

	query := fmt.Sprintf(`
		SELECT id, %s AS relevance
		FROM %s
		WHERE %s
		ORDER BY relevance DESC, id ASC
		LIMIT ?`, relevance, table, strings.Join(where, " AND "))
	args = append(args, topK)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			r  float64
		)
		if err := rows.Scan(&id, &r); err != nil {
			return err
		}
		into[id] += r
	}
	return rows.Err()
}

// Path returns the database file path.
func (x *FTSIndex) Path() string {
	return x.path
}

func (x *FTSIndex) Close() error {
	return x.db.Close()
}
