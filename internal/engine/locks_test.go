package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocks_SerializesSameID(t *testing.T) {
	k := newKeyedLocks()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range make([]struct{}, 20) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "x")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, k.size())
}

func TestKeyedLocks_DistinctIDsDoNotBlock(t *testing.T) {
	k := newKeyedLocks()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedLocks_ContextCancel(t *testing.T) {
	k := newKeyedLocks()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, k.size())
}
