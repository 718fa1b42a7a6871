// Package cache provides the keyed, observable in-memory store that backs every
// view of server data.
//
// # Overview
//
// Each entry is addressed by a Key tuple such as (health, dashboard, 2024-07-15).
// Reads that miss, or that find a stale or invalidated entry, go through an
// injected Loader; concurrent loads of one key share a single call.
//
// # Writes and notification
//
// Writes are serialized. A write (or a multi-key Update transaction) is applied
// in full before any subscriber runs, and subscribers of every touched key are
// called before the write returns, in commit order. Subscribers may Get or Peek
// but must not write or Fetch synchronously.
//
// # Pinning
//
// Keys touched by an in-flight optimistic mutation are pinned. Loader results
// that land on a pinned key, or on a key that was written after the load began,
// are discarded so a refetch never erases optimistic state. Invalidating a
// pinned key defers its refetch until the last pin is released.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

// Loader fetches the authoritative value for key.
type Loader func(ctx context.Context, key Key) (any, error)

// Listener is called after every write to a subscribed key. present is false
// once the entry has been removed.
type Listener func(key Key, value any, present bool)

// State is a point-in-time view of one entry.
type State struct {
	Value       any
	Present     bool
	UpdatedAt   time.Time
	Invalidated bool
	Pinned      bool
	Version     uint64
	Subscribers int
}

// Stats counts cache traffic since creation.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Loads         int64 `json:"loads"`
	Discarded     int64 `json:"discarded"`
	Invalidations int64 `json:"invalidations"`
}

type entry struct {
	key         Key
	value       any
	present     bool
	updatedAt   time.Time
	invalidated bool
	version     uint64
	pins        int
	deferred    bool
	subs        map[uint64]Listener
}

// Cache is safe for concurrent use.
type Cache struct {
	// writeMu serializes writers together with the delivery of their
	// notifications; mu guards the entry map.
	writeMu sync.Mutex
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	subSeq  uint64

	group     singleflight.Group
	loader    Loader
	staleTime func(Key) time.Duration
	now       func() time.Time
	log       zerolog.Logger
	bg        sync.WaitGroup

	hits, misses, loads, discarded, invalidations atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLoader sets the function used to fill absent or stale entries.
func WithLoader(l Loader) Option {
	return func(c *Cache) { c.loader = l }
}

// WithStaleTime sets the per-key freshness window. A non-positive duration
// means entries only go stale through invalidation.
func WithStaleTime(fn func(Key) time.Duration) Option {
	return func(c *Cache) { c.staleTime = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
		log:     log.Logger.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLoader replaces the loader. It exists for composition roots that build
// the loader after the cache.
func (c *Cache) SetLoader(l Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loader = l
}

// Get returns the current value without loading.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key.Hash()]
	if e == nil || !e.present {
		return nil, false
	}
	return e.value, true
}

// Peek returns the full state of key.
func (c *Cache) Peek(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(c.entries[key.Hash()])
}

// Keys lists every present key.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		if e.present {
			out = append(out, e.key)
		}
	}
	return out
}

// IsStale reports whether a read of key would go to the loader.
func (c *Cache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staleLocked(c.entries[key.Hash()])
}

// Set stores v under key.
func (c *Cache) Set(key Key, v any) {
	c.Update(func(tx *Tx) { tx.Set(key, v) })
}

// Patch replaces the value of a present key with fn(current). It reports
// whether the key was present.
func (c *Cache) Patch(key Key, fn func(any) any) bool {
	var ok bool
	c.Update(func(tx *Tx) { ok = tx.Patch(key, fn) })
	return ok
}

// Remove deletes the value of key. Subscriptions survive.
func (c *Cache) Remove(key Key) {
	c.Update(func(tx *Tx) { tx.Remove(key) })
}

// Invalidate marks key stale. An observed, unpinned key is refetched in the
// background.
func (c *Cache) Invalidate(key Key) {
	c.Update(func(tx *Tx) { tx.Invalidate(key) })
}

// InvalidatePrefix invalidates every present key starting with prefix and
// returns how many were marked.
func (c *Cache) InvalidatePrefix(prefix Key) int {
	var n int
	c.Update(func(tx *Tx) {
		for _, e := range c.entries {
			if e.present && e.key.HasPrefix(prefix) {
				tx.Invalidate(e.key)
				n++
			}
		}
	})
	return n
}

// Subscribe registers fn for writes to key. The returned function removes it.
func (c *Cache) Subscribe(key Key, fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	c.subSeq++
	id := c.subSeq
	if e.subs == nil {
		e.subs = make(map[uint64]Listener)
	}
	e.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(e.subs, id)
		})
	}
}

// Fetch returns the value of key, loading it when absent, stale or
// invalidated. A pinned key that is present is returned as-is.
func (c *Cache) Fetch(ctx context.Context, key Key) (any, error) {
	c.mu.Lock()
	e := c.entries[key.Hash()]
	if e != nil && e.present && (e.pins > 0 || !c.staleLocked(e)) {
		v := e.value
		c.mu.Unlock()
		c.hits.Add(1)
		return v, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)
	return c.load(ctx, key)
}

// Refetch loads key regardless of freshness. For a pinned key the load is
// deferred until unpin and the current value is returned.
func (c *Cache) Refetch(ctx context.Context, key Key) (any, error) {
	c.mu.Lock()
	if e := c.entries[key.Hash()]; e != nil && e.pins > 0 {
		e.deferred = true
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	return c.load(ctx, key)
}

// Update runs fn as one atomic write over any number of keys. Subscribers see
// only the final state. fn must not call other Cache methods.
func (c *Cache) Update(fn func(tx *Tx)) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	tx := &Tx{c: c, touched: make(map[string]*entry)}
	fn(tx)
	notes := tx.notifications()
	refetch := tx.refetch
	tx.c = nil
	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}
	for _, k := range refetch {
		c.refetchInBackground(k)
	}
}

// Wait blocks until background refetches started so far have finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Loads:         c.loads.Load(),
		Discarded:     c.discarded.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func (c *Cache) load(ctx context.Context, key Key) (any, error) {
	c.mu.Lock()
	loader := c.loader
	c.mu.Unlock()
	if loader == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNoLoader, key)
	}

	h := key.Hash()
	ch := c.group.DoChan(h, func() (any, error) {
		c.mu.Lock()
		var start uint64
		if e := c.entries[h]; e != nil {
			start = e.version
		}
		c.mu.Unlock()

		c.loads.Add(1)
		// Shared by every waiter, so one caller giving up must not cancel it.
		v, err := loader(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		return c.storeLoaded(key, v, start), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load %s: %w", key, res.Err)
		}
		return res.Val, nil
	}
}

// storeLoaded writes a loader result unless the key was pinned or written
// since the load started. It returns the value callers should observe.
func (c *Cache) storeLoaded(key Key, v any, startVersion uint64) any {
	out := v
	c.Update(func(tx *Tx) {
		e := c.entries[key.Hash()]
		if e != nil && (e.pins > 0 || e.version != startVersion) {
			c.discarded.Add(1)
			c.log.Debug().Str("key", key.String()).Int("pins", e.pins).Msg("discarding load result")
			if e.present {
				out = e.value
			}
			return
		}
		tx.Set(key, v)
	})
	return out
}

func (c *Cache) refetchInBackground(key Key) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.Refetch(context.Background(), key); err != nil {
			c.log.Warn().Err(err).Str("key", key.String()).Msg("background refetch failed")
		}
	}()
}

func (c *Cache) entryLocked(key Key) *entry {
	h := key.Hash()
	e := c.entries[h]
	if e == nil {
		e = &entry{key: key}
		c.entries[h] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	if e == nil || !e.present || e.invalidated {
		return true
	}
	if c.staleTime == nil {
		return false
	}
	d := c.staleTime(e.key)
	if d <= 0 {
		return false
	}
	return c.now().Sub(e.updatedAt) >= d
}

func (c *Cache) stateLocked(e *entry) State {
	if e == nil {
		return State{}
	}
	return State{
		Value:       e.value,
		Present:     e.present,
		UpdatedAt:   e.updatedAt,
		Invalidated: e.invalidated,
		Pinned:      e.pins > 0,
		Version:     e.version,
		Subscribers: len(e.subs),
	}
}
