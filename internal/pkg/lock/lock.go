// Package lock provides per-key locking for concurrent balance operations.
// Keys are user or bot identifiers; operations touching several keys take
// them in ascending order so two callers can never deadlock each other.
package lock

import (
	"context"
	"sort"
	"sync"
)

// keyMutex is a one-slot semaphore shared by everyone holding or waiting for
// a key. refs counts them; the entry is evicted when it drops to zero.
type keyMutex struct {
	sem  chan struct{}
	refs int
}

// KeyLock serializes work per key inside one process.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyMutex)}
}

// acquire registers interest in key and returns its mutex.
func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.locks[key]
	if !ok {
		l = &keyMutex{sem: make(chan struct{}, 1)}
		kl.locks[key] = l
	}
	l.refs++
	return l
}

// forget drops one reference to l, evicting it when unused.
func (kl *KeyLock) forget(key string, l *keyMutex) {
	l.refs--
	if l.refs == 0 {
		delete(kl.locks, key)
	}
}

// lock blocks until key is held or ctx is done.
func (kl *KeyLock) lock(ctx context.Context, key string) error {
	l := kl.acquire(key)
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.mu.Lock()
		kl.forget(key, l)
		kl.mu.Unlock()
		return ctx.Err()
	}
}

// unlock releases key. Unlocking a key that is not held panics, as with
// sync.Mutex.
func (kl *KeyLock) unlock(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.locks[key]
	if ok {
		select {
		case <-l.sem:
			kl.forget(key, l)
			return
		default:
		}
	}
	panic("lock: unlock of unlocked key " + key)
}

// orderedKeys returns keys sorted and without duplicates or empty strings.
func orderedKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LockMany acquires every key in ascending order and returns the function
// that releases them. If ctx ends while waiting, the keys taken so far are
// released and ctx.Err() is returned.
func (kl *KeyLock) LockMany(ctx context.Context, keys ...string) (unlock func(), err error) {
	ordered := orderedKeys(keys)
	release := func(held []string) {
		for i := len(held) - 1; i >= 0; i-- {
			kl.unlock(held[i])
		}
	}

	for i, k := range ordered {
		if err := kl.lock(ctx, k); err != nil {
			release(ordered[:i])
			return nil, err
		}
	}
	return func() { release(ordered) }, nil
}
