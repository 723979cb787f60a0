package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/openmemory/internal/model"
)

func newTestCache(t *testing.T) *Records {
	t.Helper()
	c, err := New(100)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestRecords_FillAndGet(t *testing.T) {
	c := newTestCache(t)

	rec := model.Record{ID: "a", Content: "alpha", Tags: []string{"x"}}
	c.Fill("a", c.Generation("a"), rec)
	c.Wait()

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Content)

	got.Tags[0] = "mutated"
	again, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", again.Tags[0])
}

func TestRecords_InvalidateRejectsOlderFill(t *testing.T) {
	c := newTestCache(t)

	gen := c.Generation("a")
	// A mutation completes between the reader's generation read and its fill.
	c.Invalidate("a")
	c.Fill("a", gen, model.Record{ID: "a", Content: "pre-image"})
	c.Wait()

	_, ok := c.Get("a")
	assert.False(t, ok, "entry filled under an old generation must not be served")
}

func TestRecords_InvalidateDropsEntry(t *testing.T) {
	c := newTestCache(t)

	c.Fill("a", c.Generation("a"), model.Record{ID: "a"})
	c.Wait()
	c.Invalidate("a")
	c.Wait()

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestRecords_Miss(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}
