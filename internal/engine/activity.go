package engine

import (
	"context"
	"hash/fnv"
	"sync/atomic"

	"github.com/rcliao/openmemory/internal/model"
)

const activityStripes = 256

// writeActivity tells lock-free readers whether a mutation may have been in
// flight on an id while they read it. Mutations bump their stripe's version
// when they take the id lock and again when they release it, and keep the
// stripe's active count raised in between. A read that starts and ends with
// the same version and no active mutation on its stripe saw committed state.
type writeActivity struct {
	active [activityStripes]atomic.Int64
	ver    [activityStripes]atomic.Uint64
}

func activityStripe(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % activityStripes)
}

func (a *writeActivity) begin(id string) {
	s := activityStripe(id)
	a.active[s].Add(1)
	a.ver[s].Add(1)
}

func (a *writeActivity) end(id string) {
	s := activityStripe(id)
	a.ver[s].Add(1)
	a.active[s].Add(-1)
}

// snapshot records every stripe version. Take it before the store reads.
func (a *writeActivity) snapshot() *[activityStripes]uint64 {
	var snap [activityStripes]uint64
	for i := range a.ver {
		snap[i] = a.ver[i].Load()
	}
	return &snap
}

// settled reports whether no mutation of id's stripe was in flight at any
// point since snap was taken.
func (a *writeActivity) settled(snap *[activityStripes]uint64, id string) bool {
	s := activityStripe(id)
	return a.active[s].Load() == 0 && a.ver[s].Load() == snap[s]
}

// read returns the committed record for id. The common path is a lock-free
// lookup; when a mutation of the same stripe overlapped it, the read is
// repeated under the id lock so that a half-finished write is never served.
func (e *Engine) read(ctx context.Context, id string) (model.Record, error) {
	snap := e.activity.snapshot()
	rec, err := e.lookup(ctx, id)
	if e.activity.settled(snap, id) {
		return rec, err
	}
	return e.readLocked(ctx, id)
}

// readLocked waits for any mutation of id to finish, then reads it.
func (e *Engine) readLocked(ctx context.Context, id string) (model.Record, error) {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	defer unlock()
	return e.lookup(ctx, id)
}

// settle waits until no mutation holds any of ids.
func (e *Engine) settle(ctx context.Context, ids []string) error {
	for _, id := range ids {
		unlock, err := e.locks.Lock(ctx, id)
		if err != nil {
			return err
		}
		unlock()
	}
	return nil
}
