package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/openmemory/internal/model"
	"github.com/rcliao/openmemory/internal/store"
)

var (
	errEmptyID   = errors.New("id must not be empty")
	errNoChanges = errors.New("update requires at least one field")
)

// CreateParams holds the inputs of Create. A nil Importance means the default.
type CreateParams struct {
	Content    string
	Summary    string
	Importance *float64
	Tags       []string
	UserID     string
}

// UpdateParams holds the fields to change. Nil means unchanged.
type UpdateParams struct {
	Content    *string
	Summary    *string
	Importance *float64
	Tags       *[]string
}

func (p UpdateParams) empty() bool {
	return p.Content == nil && p.Summary == nil && p.Importance == nil && p.Tags == nil
}

// Create validates and stores a new memory in both stores. On success the
// record is immediately visible to searches; on failure it is visible in
// neither store.
func (e *Engine) Create(ctx context.Context, p CreateParams) (model.Record, error) {
	const op = "save"

	if err := model.ValidateContent(p.Content); err != nil {
		return model.Record{}, validationErr(op, "content", err)
	}
	importance := model.DefaultImportance
	if p.Importance != nil {
		importance = *p.Importance
		if err := model.ValidateImportance(importance); err != nil {
			return model.Record{}, validationErr(op, "importance", err)
		}
	}

	now := e.now()
	rec := model.Record{
		ID:         e.newID(now),
		UserID:     p.UserID,
		Content:    p.Content,
		Summary:    p.Summary,
		Importance: importance,
		Tags:       model.NormalizeTags(p.Tags),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	unlock, err := e.lock(ctx, op, rec.ID)
	if err != nil {
		return model.Record{}, err
	}
	defer unlock()

	var put attempts
	err = e.retry(ctx, op, rec.ID, put.track(func(ctx context.Context) error {
		return e.meta.Put(ctx, rec)
	}))
	e.invalidate(rec.ID)
	if err != nil {
		if put.maybeApplied {
			if cerr := e.undoCreate(ctx, op, rec.ID, false); cerr != nil {
				return model.Record{}, cerr
			}
		}
		return model.Record{}, storeErr(op, rec.ID, err)
	}

	err = e.retry(ctx, op, rec.ID, func(ctx context.Context) error {
		return e.index.Index(ctx, store.DocumentOf(rec))
	})
	if err != nil {
		if cerr := e.undoCreate(ctx, op, rec.ID, true); cerr != nil {
			return model.Record{}, cerr
		}
		return model.Record{}, storeErr(op, rec.ID, err)
	}

	e.log.Debug("memory saved", "id", rec.ID, "user_id", rec.UserID)
	return rec, nil
}

// undoCreate removes a half-created record. The index entry goes first so
// the record never shows up indexed without metadata.
func (e *Engine) undoCreate(ctx context.Context, op, id string, indexed bool) error {
	cctx := compensationContext(ctx)
	if indexed {
		if err := e.retry(cctx, op, id, func(ctx context.Context) error {
			return e.index.Remove(ctx, id)
		}); err != nil {
			e.log.Warn("compensation: index remove failed", "op", op, "id", id, "err", err)
		}
	}
	err := e.retry(cctx, op, id, func(ctx context.Context) error {
		return e.meta.Delete(ctx, id)
	})
	e.invalidate(id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return e.inconsistent(op, id, "metadata delete", err)
	}
	return nil
}

// Update applies the supplied fields to an existing memory and re-indexes it.
// Readers observe either the pre-image or the post-image, never a mix.
func (e *Engine) Update(ctx context.Context, id string, p UpdateParams) (model.Record, error) {
	const op = "update"

	if id == "" {
		return model.Record{}, validationErr(op, "id", errEmptyID)
	}
	if p.empty() {
		return model.Record{}, validationErr(op, "", errNoChanges)
	}
	if p.Content != nil {
		if err := model.ValidateContent(*p.Content); err != nil {
			return model.Record{}, validationErr(op, "content", err)
		}
	}
	if p.Importance != nil {
		if err := model.ValidateImportance(*p.Importance); err != nil {
			return model.Record{}, validationErr(op, "importance", err)
		}
	}

	unlock, err := e.lock(ctx, op, id)
	if err != nil {
		return model.Record{}, err
	}
	defer unlock()

	var prev model.Record
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		prev, err = e.meta.Get(ctx, id)
		return err
	})
	if err != nil {
		return model.Record{}, storeErr(op, id, err)
	}

	next := prev.Clone()
	if p.Content != nil {
		next.Content = *p.Content
	}
	if p.Summary != nil {
		next.Summary = *p.Summary
	}
	if p.Importance != nil {
		next.Importance = *p.Importance
	}
	if p.Tags != nil {
		next.Tags = model.NormalizeTags(*p.Tags)
	}
	next.UpdatedAt = e.now()
	if !next.UpdatedAt.After(prev.UpdatedAt) {
		next.UpdatedAt = prev.UpdatedAt.Add(1)
	}

	var put attempts
	err = e.retry(ctx, op, id, put.track(func(ctx context.Context) error {
		return e.meta.Put(ctx, next)
	}))
	e.invalidate(id)
	if err != nil {
		if put.maybeApplied {
			if cerr := e.restore(ctx, op, prev, false); cerr != nil {
				return model.Record{}, cerr
			}
		}
		return model.Record{}, storeErr(op, id, err)
	}

	err = e.retry(ctx, op, id, func(ctx context.Context) error {
		return e.index.Index(ctx, store.DocumentOf(next))
	})
	if err != nil {
		if cerr := e.restore(ctx, op, prev, true); cerr != nil {
			return model.Record{}, cerr
		}
		return model.Record{}, storeErr(op, id, err)
	}

	e.log.Debug("memory updated", "id", id)
	return next, nil
}

// restore writes the pre-image back. With reindex set it also puts the old
// index entry back, since a failed index write may have partially landed.
func (e *Engine) restore(ctx context.Context, op string, prev model.Record, reindex bool) error {
	cctx := compensationContext(ctx)
	err := e.retry(cctx, op, prev.ID, func(ctx context.Context) error {
		return e.meta.Put(ctx, prev)
	})
	e.invalidate(prev.ID)
	if err != nil {
		return e.inconsistent(op, prev.ID, "metadata restore", err)
	}
	if !reindex {
		return nil
	}
	err = e.retry(cctx, op, prev.ID, func(ctx context.Context) error {
		return e.index.Index(ctx, store.DocumentOf(prev))
	})
	if err != nil {
		return e.inconsistent(op, prev.ID, "index restore", err)
	}
	return nil
}

// Delete removes a memory from both stores. The index entry goes first, so a
// failure part way leaves the record known to metadata but unsearchable, and
// the compensation re-indexes it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	const op = "delete"

	if id == "" {
		return validationErr(op, "id", errEmptyID)
	}

	unlock, err := e.lock(ctx, op, id)
	if err != nil {
		return err
	}
	defer unlock()

	var prev model.Record
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		prev, err = e.meta.Get(ctx, id)
		return err
	})
	if err != nil {
		return storeErr(op, id, err)
	}

	var remove attempts
	err = e.retry(ctx, op, id, remove.track(func(ctx context.Context) error {
		return e.index.Remove(ctx, id)
	}))
	if err != nil {
		if remove.maybeApplied {
			if cerr := e.reindex(ctx, op, prev); cerr != nil {
				return cerr
			}
		}
		return storeErr(op, id, err)
	}

	err = e.retry(ctx, op, id, func(ctx context.Context) error {
		return e.meta.Delete(ctx, id)
	})
	e.invalidate(id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		if cerr := e.reindex(ctx, op, prev); cerr != nil {
			return cerr
		}
		return storeErr(op, id, err)
	}

	e.log.Debug("memory deleted", "id", id)
	return nil
}

// reindex puts the index entry of a record that is still in metadata back.
func (e *Engine) reindex(ctx context.Context, op string, rec model.Record) error {
	err := e.retry(compensationContext(ctx), op, rec.ID, func(ctx context.Context) error {
		return e.index.Index(ctx, store.DocumentOf(rec))
	})
	if err != nil {
		return e.inconsistent(op, rec.ID, "index restore", err)
	}
	return nil
}

// attempts records whether any failed attempt of a write may still have been
// applied by the store. Only a deadline or cancellation leaves that open; a
// definite adapter error means nothing changed.
type attempts struct {
	maybeApplied bool
}

func (a *attempts) track(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil) {
			a.maybeApplied = true
		}
		return err
	}
}

func (e *Engine) inconsistent(op, id, step string, err error) *Error {
	e.log.Error("compensation failed, stores diverged", "op", op, "id", id, "step", step, "err", err)
	return &Error{Kind: KindInconsistent, Op: op, ID: id, Err: fmt.Errorf("%s: %w", step, err)}
}
