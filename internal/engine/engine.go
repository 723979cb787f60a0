// Package engine coordinates the metadata store and the lexical index. It owns
// writes that span both stores, compensating on partial failure, and it plans
// hybrid-ranked queries over them.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/openmemory/internal/cache"
	"github.com/rcliao/openmemory/internal/model"
	"github.com/rcliao/openmemory/internal/store"
)

// Options tunes an Engine. Zero fields take the defaults from DefaultOptions,
// except WriteRetries, where zero means a single attempt.
type Options struct {
	StoreTimeout time.Duration
	WriteRetries int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	DefaultSearchLimit int
	MaxSearchLimit     int
	OverFetch          int
	DefaultListLimit   int
	MaxListLimit       int

	Weights Weights

	// Cache is optional; nil disables read-through caching.
	Cache  *cache.Records
	Logger *slog.Logger
	// Now is the clock. Tests pin it for deterministic scores.
	Now func() time.Time
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		StoreTimeout:       2 * time.Second,
		WriteRetries:       3,
		RetryBackoff:       10 * time.Millisecond,
		MaxBackoff:         200 * time.Millisecond,
		DefaultSearchLimit: 5,
		MaxSearchLimit:     20,
		OverFetch:          4,
		DefaultListLimit:   20,
		MaxListLimit:       100,
		Weights:            DefaultWeights,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.WriteRetries < 0 {
		o.WriteRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.DefaultSearchLimit <= 0 {
		o.DefaultSearchLimit = d.DefaultSearchLimit
	}
	if o.MaxSearchLimit <= 0 {
		o.MaxSearchLimit = d.MaxSearchLimit
	}
	if o.OverFetch <= 0 {
		o.OverFetch = d.OverFetch
	}
	if o.DefaultListLimit <= 0 {
		o.DefaultListLimit = d.DefaultListLimit
	}
	if o.MaxListLimit <= 0 {
		o.MaxListLimit = d.MaxListLimit
	}
	if o.Weights == (Weights{}) {
		o.Weights = d.Weights
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Engine is safe for concurrent use. Mutations on the same id are serialized;
// everything else runs in parallel.
type Engine struct {
	meta  store.MetadataStore
	index store.LexicalIndex
	opts  Options
	locks *keyedLocks
	cache *cache.Records
	log   *slog.Logger
	now   func() time.Time

	// activity is raised for the whole of every mutation, compensation included.
	activity writeActivity

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates an engine over the two stores. The engine does not own them;
// callers close the stores after they are done with the engine.
func New(meta store.MetadataStore, index store.LexicalIndex, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		meta:  meta,
		index: index,
		opts:  opts,
		locks: newKeyedLocks(),
		cache: opts.Cache,
		log:   opts.Logger,
		now:   opts.Now,

		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Options returns the effective tuning.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) newID(at time.Time) string {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), e.entropy).String()
}

// call runs one store operation under the store timeout.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

// retry runs fn until it succeeds, reports ErrNotFound, or the attempts run
// out. Backoff doubles from RetryBackoff up to MaxBackoff.
func (e *Engine) retry(ctx context.Context, op, id string, fn func(context.Context) error) error {
	backoff := e.opts.RetryBackoff
	var err error
	for attempt := 0; attempt <= e.opts.WriteRetries; attempt++ {
		if attempt > 0 {
			e.log.Warn("retrying store write", "op", op, "id", id, "attempt", attempt, "err", err)
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
			backoff = min(backoff*2, e.opts.MaxBackoff)
		}
		err = e.call(ctx, fn)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return err
}

// compensationContext detaches from caller cancellation: a rollback must run
// even when the request that triggered it is gone.
func compensationContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// storeErr maps an adapter error onto the engine taxonomy. Deadlines and every
// other adapter failure surface as unavailable.
func storeErr(op, id string, err error) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Op: op, ID: id, Err: store.ErrNotFound}
	}
	return &Error{Kind: KindUnavailable, Op: op, ID: id, Err: err}
}

func (e *Engine) invalidate(id string) {
	if e.cache != nil {
		e.cache.Invalidate(id)
	}
}

// lookup reads a record from the metadata store, through the cache when one
// is configured.
func (e *Engine) lookup(ctx context.Context, id string) (model.Record, error) {
	var gen uint64
	if e.cache != nil {
		if rec, ok := e.cache.Get(id); ok {
			return rec, nil
		}
		gen = e.cache.Generation(id)
	}
	var rec model.Record
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		rec, err = e.meta.Get(ctx, id)
		return err
	})
	if err != nil {
		return model.Record{}, err
	}
	if e.cache != nil {
		e.cache.Fill(id, gen, rec)
	}
	return rec, nil
}

func (e *Engine) lock(ctx context.Context, op, id string) (func(), error) {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, ID: id, Err: err}
	}
	e.activity.begin(id)
	return func() {
		e.activity.end(id)
		unlock()
	}, nil
}
