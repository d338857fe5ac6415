package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// KeyedLocks hands out one mutual-exclusion lock per key. Locks are created on
// demand and kept for the life of the process.
type KeyedLocks struct {
	locks sync.Map // key -> *semaphore.Weighted
	count atomic.Int64
}

// NewKeyedLocks creates an empty lock set.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{}
}

// Lock blocks until the key's lock is held or ctx is done. The returned
// function releases the lock and is safe to call more than once.
func (l *KeyedLocks) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sem := l.lockFor(key)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// Len reports how many distinct keys have a lock.
func (l *KeyedLocks) Len() int {
	return int(l.count.Load())
}

func (l *KeyedLocks) lockFor(key string) *semaphore.Weighted {
	if v, ok := l.locks.Load(key); ok {
		return v.(*semaphore.Weighted)
	}
	v, loaded := l.locks.LoadOrStore(key, semaphore.NewWeighted(1))
	if !loaded {
		l.count.Add(1)
	}
	return v.(*semaphore.Weighted)
}
