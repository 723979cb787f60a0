// Package model defines the core memory data types.
package model

import (
	"errors"
	"math"
	"strings"
	"time"
)

// DefaultImportance is applied when a caller does not supply one.
const DefaultImportance = 0.5

// Record is a single memory. The same record, keyed by ID, lives in the
// metadata store and in the lexical index.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary,omitempty"`
	Importance float64   `json:"importance"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate tags freely.
func (r Record) Clone() Record {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	return out
}

var (
	ErrEmptyContent      = errors.New("content must not be empty")
	ErrImportanceRange   = errors.New("importance must be within [0.0, 1.0]")
	ErrImportanceInvalid = errors.New("importance must be a finite number")
)

// ValidateContent rejects blank content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// ValidateImportance accepts 0.0 and 1.0 inclusively. Out-of-range values are
// rejected, never clamped.
func ValidateImportance(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrImportanceInvalid
	}
	if v < 0 || v > 1 {
		return ErrImportanceRange
	}
	return nil
}

// NormalizeTags trims tags, drops empties and duplicates, and keeps the
// first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
