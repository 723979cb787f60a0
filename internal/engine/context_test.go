package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_PacksWithinBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.save(t, "budget "+strings.Repeat("a", 150), 0.9)
	h.save(t, "budget "+strings.Repeat("b", 150), 0.5)
	h.save(t, "budget "+strings.Repeat("c", 400), 0.1)

	// 120 tokens is 480 bytes: two full memories plus an excerpt.
	res, err := h.eng.Context(ctx, ContextParams{Query: "budget", Budget: 120})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Budget)
	require.Len(t, res.Memories, 3)
	assert.False(t, res.Memories[0].Excerpt)
	assert.False(t, res.Memories[1].Excerpt)
	assert.True(t, res.Memories[2].Excerpt)
	assert.True(t, strings.HasSuffix(res.Memories[2].Content, "..."))
	assert.LessOrEqual(t, res.Used, res.Budget)
}

func TestContext_SkipsTinyExcerpt(t *testing.T) {
	h := newHarness(t)
	h.save(t, "tiny "+strings.Repeat("x", 30), 0.9)
	h.save(t, "tiny "+strings.Repeat("y", 300), 0.1)

	res, err := h.eng.Context(context.Background(), ContextParams{Query: "tiny", Budget: 20})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, 9, res.Used)
}

func TestContext_Empty(t *testing.T) {
	h := newHarness(t)
	res, err := h.eng.Context(context.Background(), ContextParams{Query: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, DefaultContextBudget, res.Budget)
	assert.NotNil(t, res.Memories)
	assert.Empty(t, res.Memories)
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "h", truncate("héllo", 2))
	assert.Equal(t, "hé", truncate("héllo", 3))
	assert.Equal(t, "abc", truncate("abc", 10))
}
