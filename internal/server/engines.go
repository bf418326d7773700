package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/verify"
)

const engineTTL = 30 * time.Minute

var errEngineClosed = errors.New("verification engine closed")

// engineEntry is created empty under the cache lock and filled once.
type engineEntry struct {
	once   sync.Once
	engine *verify.Engine
	err    error

	// use serializes batches and single verifications on one engine.
	use      sync.Mutex
	busy     int
	lastUsed time.Time
}

// engineCache keeps one engine per session, crumb and client_id so a
// returning user reuses its connection or browser.
type engineCache struct {
	mu      sync.Mutex
	entries map[string]*engineEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func newEngineCache(ttl time.Duration, now func() time.Time, logger *zap.Logger) *engineCache {
	return &engineCache{entries: map[string]*engineEntry{}, ttl: ttl, now: now, logger: logger}
}

func engineKey(sessionID, crumb, clientID string) string {
	return sessionID + "|" + crumb + "|" + clientID
}

// with runs fn with the engine for key, opening it with open on first use.
// Calls for the same key run one at a time.
func (c *engineCache) with(ctx context.Context, key string, open func(context.Context) (*verify.Engine, error), fn func(*verify.Engine)) error {
	c.evictIdle()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &engineEntry{}
		c.entries[key] = entry
	}
	entry.busy++
	entry.lastUsed = c.now()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		entry.busy--
		entry.lastUsed = c.now()
		c.mu.Unlock()
	}()

	entry.once.Do(func() {
		entry.engine, entry.err = open(ctx)
	})
	if entry.err != nil {
		c.mu.Lock()
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return entry.err
	}

	entry.use.Lock()
	defer entry.use.Unlock()
	fn(entry.engine)
	return nil
}

// evictIdle closes engines unused for longer than the TTL.
func (c *engineCache) evictIdle() {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	var stale []*engineEntry
	for key, e := range c.entries {
		if e.busy == 0 && e.lastUsed.Before(cutoff) {
			stale = append(stale, e)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, e := range stale {
		if e.engine != nil {
			e.engine.Close()
		}
	}
	if len(stale) > 0 {
		c.logger.Debug("evicted idle engines", zap.Int("count", len(stale)))
	}
}

func (c *engineCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *engineCache) closeAll() {
	c.mu.Lock()
	entries := c.entries
	c.entries = map[string]*engineEntry{}
	c.mu.Unlock()

	for _, e := range entries {
		e.once.Do(func() { e.err = errEngineClosed })
		e.use.Lock()
		if e.engine != nil {
			e.engine.Close()
		}
		e.use.Unlock()
	}
}
