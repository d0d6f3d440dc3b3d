package concurrency

import (
	"context"
	"sync"
)

// Limiter bounds how many functions run at once.
type Limiter struct {
	limit chan struct{}
}

func NewLimiter(maxConcurrency int) Limiter {
	return Limiter{
		limit: make(chan struct{}, maxConcurrency),
	}
}

// Do runs f once a slot is free. It returns canceled=true without running f
// if ctx is done first.
func (c *Limiter) Do(ctx context.Context, f func()) (canceled bool) {
	select {
	case c.limit <- struct{}{}:
		defer func() {
			<-c.limit
		}()
		f()
		return false
	case <-ctx.Done():
		return true
	}
}

// KeyedLimiter holds one Limiter per key. Keys nobody is waiting on are
// dropped so the map only grows with the number of keys in use.
type KeyedLimiter struct {
	maxConcurrency int
	mu             sync.Mutex
	limiters       map[string]*keyedEntry
}

type keyedEntry struct {
	limiter Limiter
	refs    int
}

func NewKeyedLimiter(maxConcurrency int) *KeyedLimiter {
	return &KeyedLimiter{
		maxConcurrency: maxConcurrency,
		limiters:       map[string]*keyedEntry{},
	}
}

// Do runs f under the limiter for key.
func (k *KeyedLimiter) Do(ctx context.Context, key string, f func()) (canceled bool) {
	entry := k.acquire(key)
	defer k.release(key)
	return entry.limiter.Do(ctx, f)
}

func (k *KeyedLimiter) acquire(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: NewLimiter(k.maxConcurrency)}
		k.limiters[key] = entry
	}
	entry.refs++
	return entry
}

func (k *KeyedLimiter) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry := k.limiters[key]
	entry.refs--
	if entry.refs == 0 {
		delete(k.limiters, key)
	}
}

// Len is the number of keys currently tracked.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
