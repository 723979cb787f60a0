package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/openmemory/internal/model"
	"github.com/rcliao/openmemory/internal/store"
)

// gatedIndex holds armed Index calls until released, then fails them.
// Disarming before release lets compensating writes through.
type gatedIndex struct {
	*store.MemIndex
	armed   atomic.Bool
	held    chan struct{}
	release chan struct{}
}

func newGatedIndex() *gatedIndex {
	return &gatedIndex{
		MemIndex: store.NewMemIndex(),
		held:     make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (x *gatedIndex) Index(ctx context.Context, d store.Document) error {
	if !x.armed.Load() {
		return x.MemIndex.Index(ctx, d)
	}
	x.held <- struct{}{}
	select {
	case <-x.release:
		return errInjected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (x *gatedIndex) open() {
	x.armed.Store(false)
	close(x.release)
}

func newGatedEngine(t *testing.T) (*Engine, *store.MemStore, *gatedIndex) {
	t.Helper()
	meta := store.NewMemStore()
	index := newGatedIndex()
	eng := New(meta, index, Options{
		StoreTimeout: 5 * time.Second,
		WriteRetries: 0,
		RetryBackoff: time.Millisecond,
	})
	return eng, meta, index
}

// requirePending fails if ch delivers within a short window.
func requirePending[T any](t *testing.T, ch chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("%s returned while the write was in flight: %+v", what, v)
	case <-time.After(50 * time.Millisecond):
	}
}

type readResult[T any] struct {
	val T
	err error
}

func TestReadersNeverSeeRolledBackCreate(t *testing.T) {
	eng, meta, index := newGatedEngine(t)
	ctx := context.Background()
	index.armed.Store(true)

	created := make(chan error, 1)
	go func() {
		_, err := eng.Create(ctx, CreateParams{Content: "half committed memory"})
		created <- err
	}()
	<-index.held

	// The metadata phase has landed; the index phase is held.
	raw, err := meta.List(ctx, store.ListParams{})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	id := raw[0].ID

	listed := make(chan readResult[[]model.Record], 1)
	go func() {
		recs, err := eng.List(ctx, ListParams{})
		listed <- readResult[[]model.Record]{recs, err}
	}()
	got := make(chan readResult[model.Record], 1)
	go func() {
		rec, err := eng.Get(ctx, id)
		got <- readResult[model.Record]{rec, err}
	}()

	requirePending(t, listed, "List")
	requirePending(t, got, "Get")

	index.open()
	requireKind(t, <-created, KindUnavailable)

	l := <-listed
	require.NoError(t, l.err)
	assert.Empty(t, l.val, "List must not return the rolled back record")

	g := <-got
	requireKind(t, g.err, KindNotFound)
}

func TestReadersSeePreImageOfRolledBackUpdate(t *testing.T) {
	eng, _, index := newGatedEngine(t)
	ctx := context.Background()

	rec, err := eng.Create(ctx, CreateParams{Content: "first draft of the plan"})
	require.NoError(t, err)
	index.armed.Store(true)

	updated := make(chan error, 1)
	go func() {
		_, err := eng.Update(ctx, rec.ID, UpdateParams{Content: ptr("second draft of the plan")})
		updated <- err
	}()
	<-index.held

	searched := make(chan readResult[[]Result], 1)
	go func() {
		res, err := eng.Search(ctx, SearchParams{Query: "draft"})
		searched <- readResult[[]Result]{res, err}
	}()
	got := make(chan readResult[model.Record], 1)
	go func() {
		r, err := eng.Get(ctx, rec.ID)
		got <- readResult[model.Record]{r, err}
	}()

	requirePending(t, searched, "Search")
	requirePending(t, got, "Get")

	index.open()
	requireKind(t, <-updated, KindUnavailable)

	s := <-searched
	require.NoError(t, s.err)
	require.Len(t, s.val, 1)
	assert.Equal(t, "first draft of the plan", s.val[0].Content)

	g := <-got
	require.NoError(t, g.err)
	assert.Equal(t, "first draft of the plan", g.val.Content)
}

func TestReadersSeeCommittedCreate(t *testing.T) {
	meta := store.NewMemStore()
	index := store.NewMemIndex()
	eng := New(meta, index, Options{})
	ctx := context.Background()

	rec, err := eng.Create(ctx, CreateParams{Content: "settled memory"})
	require.NoError(t, err)

	// No mutation in flight: reads take the lock-free path.
	got, err := eng.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, 0, eng.locks.size())
}

func TestWriteActivity(t *testing.T) {
	var a writeActivity
	snap := a.snapshot()
	assert.True(t, a.settled(snap, "x"))

	a.begin("x")
	assert.False(t, a.settled(snap, "x"), "active mutation")
	assert.False(t, a.settled(a.snapshot(), "x"), "active mutation after the snapshot")

	a.end("x")
	assert.False(t, a.settled(snap, "x"), "mutation finished during the read")
	assert.True(t, a.settled(a.snapshot(), "x"))
}
