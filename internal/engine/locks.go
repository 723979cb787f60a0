package engine

import (
	"context"
	"sync"
)

// keyedLocks serializes mutations per id. Entries are reference counted and
// dropped when the last holder or waiter leaves, so the table only holds ids
// with in-flight mutations.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: make(map[string]*keyedLock)}
}

// Lock acquires the lock for id, giving up when ctx is done.
func (k *keyedLocks) Lock(ctx context.Context, id string) (func(), error) {
	k.mu.Lock()
	l, ok := k.m[id]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.m[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(id, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(id, l)
		})
	}, nil
}

func (k *keyedLocks) release(id string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.m, id)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
