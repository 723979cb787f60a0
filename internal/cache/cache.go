// Package cache provides a read-through record cache for metadata lookups.
//
// Entries are tagged with a generation taken before the backing read. Every
// mutation bumps the generation of its id's stripe after the store write, so
// an entry filled from a pre-image is never served once the mutation has
// completed. A stale or dropped entry only costs a store read.
package cache

import (
	"hash/fnv"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/rcliao/openmemory/internal/model"
)

const stripes = 256

// Records caches metadata records by id.
type Records struct {
	c    *ristretto.Cache
	gens [stripes]atomic.Uint64
}

type entry struct {
	gen uint64
	rec model.Record
}

// New creates a cache holding roughly maxRecords records.
func New(maxRecords int64) (*Records, error) {
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxRecords * 10,
		MaxCost:            maxRecords,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Records{c: c}, nil
}

func stripe(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % stripes)
}

// Generation returns the current generation for id. Read it before loading
// the record from the store and pass it to Fill.
func (r *Records) Generation(id string) uint64 {
	return r.gens[stripe(id)].Load()
}

// Get returns a cached record if one exists and no mutation of its stripe has
// completed since it was loaded.
func (r *Records) Get(id string) (model.Record, bool) {
	v, ok := r.c.Get(id)
	if !ok {
		return model.Record{}, false
	}
	e, ok := v.(entry)
	if !ok || e.gen != r.Generation(id) {
		return model.Record{}, false
	}
	return e.rec.Clone(), true
}

// Fill stores rec as loaded under generation gen.
func (r *Records) Fill(id string, gen uint64, rec model.Record) {
	r.c.Set(id, entry{gen: gen, rec: rec.Clone()}, 1)
}

// Invalidate marks every cached entry in id's stripe stale. Call it after
// each metadata write, including compensating writes.
func (r *Records) Invalidate(id string) {
	r.gens[stripe(id)].Add(1)
	r.c.Del(id)
}

// Wait blocks until buffered writes are applied. Tests use it to make Fill
// visible to the next Get.
func (r *Records) Wait() {
	r.c.Wait()
}

// Close stops the cache's background goroutines.
func (r *Records) Close() {
	r.c.Close()
}
