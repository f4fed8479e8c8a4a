package compose

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"adapterd/internal/clock"
	"adapterd/internal/engine"
	"adapterd/pkg/types"
)

const (
	// statsWindow bounds the sliding window used for hit-rate and average
	// build latency reporting.
	statsWindow = 256
	// pinGrace is how long a freshly built entry stays unevictable when no
	// caller ever acquired it (every subscriber timed out before the build
	// finished). The sweeper clears such pins so the entry rejoins LRU order.
	pinGrace = time.Minute
)

var errEntryClosed = errors.New("cache entry closed during handoff")

// entry is one cached composition. All fields are guarded by Cache.mu.
type entry struct {
	key       Key
	handle    engine.Handle
	createdAt time.Time
	lastUsed  time.Time
	useCount  uint64
	refs      int
	// buildPin keeps a just-built entry alive until the first acquire.
	buildPin bool
	// detached entries have been removed from the map (invalidate/evict/TTL)
	// and close once the last reference drains.
	detached bool
	closed   bool
}

// Ref is a live reference to a cached composition. Callers must Release
// when the request is done; the underlying handle is physically closed only
// when the entry is gone from the cache and no references remain.
type Ref struct {
	c *Cache
	e *entry
}

// Handle returns the composition handle backing this reference.
func (r *Ref) Handle() engine.Handle { return r.e.handle }

// Key returns the composition key.
func (r *Ref) Key() Key { return r.e.key }

// Release drops the reference.
func (r *Ref) Release() { r.c.release(r.e) }

// Cache is the LRU+TTL composition cache. Builds are single-flight per key:
// concurrent callers for the same key share one build and receive the
// identical handle or identical error.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	capacity int
	ttl      time.Duration
	clk      clock.Clock
	pub      EventPublisher

	hits      uint64
	misses    uint64
	evictions uint64

	// sliding outcome window: 1 = hit, 0 = miss
	window    [statsWindow]byte
	windowPos int
	windowN   int
	// sliding build latency window
	lat    [statsWindow]time.Duration
	latPos int
	latN   int
}

// NewCache constructs a Cache. ttl <= 0 disables expiry; clk nil means real
// time; pub nil drops events.
func NewCache(capacity int, ttl time.Duration, clk clock.Clock, pub EventPublisher) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	if clk == nil {
		clk = clock.Real()
	}
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		ttl:      ttl,
		clk:      clk,
		pub:      pub,
	}
}

// GetOrBuild returns a referenced handle for key, building it at most once
// per key per build cycle. Waiting is bounded by ctx; a caller that gives up
// does not cancel the build, which still completes and populates the cache.
// Build errors are never cached.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, build func() (engine.Handle, error)) (*Ref, error) {
	ks := key.String()
	for attempt := 0; attempt < 2; attempt++ {
		if ref := c.lookup(ks); ref != nil {
			return ref, nil
		}
		e, err := c.buildShared(ctx, key, ks, build)
		if err != nil {
			return nil, err
		}
		if ref := c.acquire(e); ref != nil {
			return ref, nil
		}
		// Entry was invalidated and closed between build handoff and
		// acquire. Retry once with a fresh build cycle.
	}
	return nil, ErrBuildFailed(ks, errEntryClosed)
}

// lookup returns a referenced entry on cache hit, expiring stale entries
// lazily.
func (c *Cache) lookup(ks string) *Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ks]
	if !ok {
		return nil
	}
	now := c.clk.Now()
	if c.ttl > 0 && now.Sub(e.lastUsed) > c.ttl {
		c.detachLocked(e)
		return nil
	}
	e.refs++
	e.buildPin = false
	e.lastUsed = now
	e.useCount++
	c.hits++
	c.pushOutcome(1)
	cacheHitsTotal.Inc()
	return &Ref{c: c, e: e}
}

// buildShared runs the single-flight build. A caller that subscribed to
// another caller's flight counts as a hit: it received the shared result
// without building.
func (c *Cache) buildShared(ctx context.Context, key Key, ks string, build func() (engine.Handle, error)) (*entry, error) {
	executed := false
	ch := c.group.DoChan(ks, func() (any, error) {
		executed = true
		// A previous flight may have inserted between our lookup miss and
		// this execution.
		if e := c.peek(ks); e != nil {
			return e, nil
		}
		c.recordMiss()
		start := c.clk.Now()
		h, err := build()
		if err != nil {
			buildsTotal.WithLabelValues("error").Inc()
			c.pub.Publish(Event{Name: "build_fail", Key: ks, Fields: map[string]any{"error": err.Error()}})
			return nil, err
		}
		lat := c.clk.Now().Sub(start)
		return c.insert(key, ks, h, lat), nil
	})

	select {
	case res := <-ch:
		c.group.Forget(ks)
		if res.Err != nil {
			return nil, res.Err
		}
		if !executed {
			c.mu.Lock()
			c.hits++
			c.pushOutcome(1)
			c.mu.Unlock()
			cacheHitsTotal.Inc()
		}
		return res.Val.(*entry), nil
	case <-ctx.Done():
		// Give up waiting; the in-flight build still completes and becomes
		// the owner of the slot.
		return nil, ctx.Err()
	}
}

// peek returns the live entry for ks without touching stats or LRU order.
func (c *Cache) peek(ks string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[ks]
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.pushOutcome(0)
	c.mu.Unlock()
	cacheMissesTotal.Inc()
}

// insert stores a freshly built handle, evicting LRU zero-ref entries when
// capacity is exceeded. The new entry carries a build pin until first use.
func (c *Cache) insert(key Key, ks string, h engine.Handle, buildLat time.Duration) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[ks]; ok {
		// Lost a race with another build cycle; the slot owner wins and the
		// fresh handle is redundant.
		_ = h.Close()
		return existing
	}
	now := c.clk.Now()
	e := &entry{
		key:       key,
		handle:    h,
		createdAt: now,
		lastUsed:  now,
		buildPin:  true,
	}
	c.entries[ks] = e
	c.lat[c.latPos] = buildLat
	c.latPos = (c.latPos + 1) % statsWindow
	if c.latN < statsWindow {
		c.latN++
	}
	buildsTotal.WithLabelValues("success").Inc()
	buildDuration.Observe(buildLat.Seconds())
	c.pub.Publish(Event{Name: "build_ready", Key: ks, Fields: map[string]any{"dur_ms": buildLat.Milliseconds()}})
	c.evictLocked()
	return e
}

// evictLocked removes least-recently-used zero-ref entries until size fits
// capacity. When every entry is referenced or pinned, capacity is exceeded
// transiently rather than evicting a pinned entry.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.capacity {
		var lru *entry
		for _, e := range c.entries {
			if e.refs > 0 || e.buildPin {
				continue
			}
			if lru == nil || e.lastUsed.Before(lru.lastUsed) {
				lru = e
			}
		}
		if lru == nil {
			return
		}
		c.detachLocked(lru)
		c.evictions++
		cacheEvictionsTotal.Inc()
		c.pub.Publish(Event{Name: "evict", Key: lru.key.String(), Fields: map[string]any{"use_count": lru.useCount}})
	}
}

// acquire takes a reference on an entry received from a build flight.
func (c *Cache) acquire(e *entry) *Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.closed {
		return nil
	}
	e.refs++
	e.buildPin = false
	e.lastUsed = c.clk.Now()
	e.useCount++
	return &Ref{c: c, e: e}
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 && e.detached && !e.closed {
		c.closeLocked(e)
	}
}

// detachLocked removes an entry from the map; the handle is closed once no
// references (or build pins) keep it alive.
func (c *Cache) detachLocked(e *entry) {
	delete(c.entries, e.key.String())
	e.detached = true
	if e.refs == 0 && !e.buildPin && !e.closed {
		c.closeLocked(e)
	}
}

func (c *Cache) closeLocked(e *entry) {
	e.closed = true
	_ = e.handle.Close()
}

// Invalidate removes the entry for key immediately (cold swap). An in-flight
// build for the key is unaffected and becomes the new owner of the slot.
func (c *Cache) Invalidate(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return false
	}
	c.detachLocked(e)
	c.pub.Publish(Event{Name: "invalidate", Key: key.String(), Fields: map[string]any{}})
	return true
}

// InvalidateAdapter removes every entry whose key references the adapter id
// and returns how many entries were dropped.
func (c *Cache) InvalidateAdapter(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.key.References(id) {
			c.detachLocked(e)
			n++
		}
	}
	return n
}

// KeysReferencing returns a snapshot of live keys containing the adapter id.
func (c *Cache) KeysReferencing(id string) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Key
	for _, e := range c.entries {
		if e.key.References(id) {
			out = append(out, e.key)
		}
	}
	return out
}

// AdapterInUse reports whether any live cache entry references the adapter.
func (c *Cache) AdapterInUse(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.key.References(id) {
			return true
		}
	}
	return false
}

// Sweep expires idle entries and clears stale build pins. Called
// periodically by the compositor to bound memory for cold keys.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	for _, e := range c.entries {
		if c.ttl > 0 && now.Sub(e.lastUsed) > c.ttl {
			c.detachLocked(e)
			continue
		}
		if e.buildPin && now.Sub(e.createdAt) > pinGrace {
			e.buildPin = false
		}
	}
}

// Size returns the number of live entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats snapshots cache counters. Hit rate and average build latency cover
// the sliding window; hits/misses/evictions are cumulative.
func (c *Cache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := types.CacheStats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if c.windowN > 0 {
		h := 0
		for i := 0; i < c.windowN; i++ {
			h += int(c.window[i])
		}
		s.HitRate = float64(h) / float64(c.windowN)
	}
	if c.latN > 0 {
		var sum time.Duration
		for i := 0; i < c.latN; i++ {
			sum += c.lat[i]
		}
		s.AvgBuildLatencyMS = float64(sum.Milliseconds()) / float64(c.latN)
	}
	return s
}

func (c *Cache) pushOutcome(v byte) {
	c.window[c.windowPos] = v
	c.windowPos = (c.windowPos + 1) % statsWindow
	if c.windowN < statsWindow {
		c.windowN++
	}
}
