package engine

import (
	"context"
	"errors"

	"github.com/rcliao/openmemory/internal/model"
	"github.com/rcliao/openmemory/internal/store"
)

// Import writes exported records back through the same two-store saga as
// Create, keeping their ids and timestamps. Existing ids are overwritten.
// It stops at the first failure and returns how many records were imported.
func (e *Engine) Import(ctx context.Context, records []model.Record) (int, error) {
	const op = "import"

	for i, r := range records {
		if err := e.importOne(ctx, op, r); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

func (e *Engine) importOne(ctx context.Context, op string, r model.Record) error {
	if r.ID == "" {
		return validationErr(op, "id", errEmptyID)
	}
	if err := model.ValidateContent(r.Content); err != nil {
		return &Error{Kind: KindValidation, Op: op, Field: "content", ID: r.ID, Err: err}
	}
	if err := model.ValidateImportance(r.Importance); err != nil {
		return &Error{Kind: KindValidation, Op: op, Field: "importance", ID: r.ID, Err: err}
	}
	rec := r.Clone()
	rec.Tags = model.NormalizeTags(rec.Tags)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.now()
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}

	unlock, err := e.lock(ctx, op, rec.ID)
	if err != nil {
		return err
	}
	defer unlock()

	var prev *model.Record
	err = e.call(ctx, func(ctx context.Context) error {
		p, err := e.meta.Get(ctx, rec.ID)
		if err == nil {
			prev = &p
		}
		return err
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeErr(op, rec.ID, err)
	}

	var put attempts
	err = e.retry(ctx, op, rec.ID, put.track(func(ctx context.Context) error {
		return e.meta.Put(ctx, rec)
	}))
	e.invalidate(rec.ID)
	if err != nil {
		if put.maybeApplied {
			if cerr := e.undoImport(ctx, op, rec.ID, prev, false); cerr != nil {
				return cerr
			}
		}
		return storeErr(op, rec.ID, err)
	}

	err = e.retry(ctx, op, rec.ID, func(ctx context.Context) error {
		return e.index.Index(ctx, store.DocumentOf(rec))
	})
	if err != nil {
		if cerr := e.undoImport(ctx, op, rec.ID, prev, true); cerr != nil {
			return cerr
		}
		return storeErr(op, rec.ID, err)
	}
	return nil
}

func (e *Engine) undoImport(ctx context.Context, op, id string, prev *model.Record, indexed bool) error {
	if prev == nil {
		return e.undoCreate(ctx, op, id, indexed)
	}
	return e.restore(ctx, op, *prev, indexed)
}
