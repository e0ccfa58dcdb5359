package chain

import (
	"context"
	"sync"
	"time"
)

// cacheEntry holds a cached block.
type cacheEntry struct {
	block     *Block
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// CachedLedger wraps a Ledger and caches Get results in memory. Blocks never
// change once appended, so the TTL only bounds memory; a background loop
// started with StartEviction drops stale entries. Append, Len, HeadHash and
// Verify go straight to the wrapped ledger.
type CachedLedger struct {
	Ledger

	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[uint64]*cacheEntry
}

// NewCachedLedger wraps inner with a block cache of the given TTL.
func NewCachedLedger(inner Ledger, ttl time.Duration) *CachedLedger {
	return &CachedLedger{
		Ledger:  inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uint64]*cacheEntry),
	}
}

// Get implements Ledger.
func (c *CachedLedger) Get(ctx context.Context, index uint64) (*Block, error) {
	c.mu.RLock()
	e, ok := c.entries[index]
	c.mu.RUnlock()
	if ok && !e.expired(c.now()) {
		return e.block.Clone(), nil
	}

	b, err := c.Ledger.Get(ctx, index)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[index] = &cacheEntry{block: b.Clone(), expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return b, nil
}

// StartEviction evicts expired entries every interval until ctx is done.
func (c *CachedLedger) StartEviction(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.evict()
			}
		}
	}()
}

// evict removes all expired entries and returns how many were dropped.
func (c *CachedLedger) evict() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// cached returns the number of cached entries, including expired ones.
func (c *CachedLedger) cached() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
