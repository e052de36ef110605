// Package cache implements the storage node's concurrent cache engine:
// a sharded index, an LRU recency list and a hashed timing wheel composed
// together, grounded directly on the original source's
// apps/cache_node/src/core/services/cache/cache.rs.
package cache

import (
	"sync"

	"github.com/ocx/cachecluster/internal/clock"
	"github.com/ocx/cachecluster/internal/lru"
	"github.com/ocx/cachecluster/internal/metrics"
	"github.com/ocx/cachecluster/internal/wheel"
)

const shardCount = 32

// Entry is one stored value. Version increments on every overwrite of the
// same key; callers treat it as opaque (spec §3).
type Entry struct {
	Value     string
	Version   uint64
	ExpiresAt uint64 // absolute ms; meaningful only when HasExpiry is set
	HasExpiry bool
}

type shard struct {
	mu    sync.Mutex
	items map[string]Entry
}

// Engine is the per-node cache: index + LRU + wheel + clock.
type Engine struct {
	shards   [shardCount]*shard
	lru      *lru.List
	wheel    *wheel.Wheel
	clock    clock.Clock
	capacity int
}

// Config bundles the engine's tunables (capacity, wheel shape, tick width).
type Config struct {
	Capacity   int
	WheelSize  int
	TickMillis uint64
	Clock      clock.Clock
}

// New builds an Engine. Capacity must be > 0.
func New(cfg Config) *Engine {
	if cfg.Capacity <= 0 {
		panic("cache: capacity must be > 0")
	}
	c := cfg.Clock
	if c == nil {
		c = clock.System{}
	}
	e := &Engine{
		lru:      lru.New(cfg.Capacity),
		wheel:    wheel.New(cfg.WheelSize, cfg.TickMillis, c.NowMillis()),
		clock:    c,
		capacity: cfg.Capacity,
	}
	for i := range e.shards {
		e.shards[i] = &shard{items: make(map[string]Entry)}
	}
	return e
}

func (e *Engine) shardFor(key string) *shard {
	return e.shards[fnv32(key)%shardCount]
}

func fnv32(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// Put inserts or overwrites key. ttlMs, when hasTTL is true, births the
// entry with an absolute expiration ttlMs from now; ttlMs == 0 means the
// entry is already expired on arrival (spec §4.5 edge case).
func (e *Engine) Put(key, value string, hasTTL bool, ttlMs uint64) {
	var expiresAt uint64
	if hasTTL {
		expiresAt = e.clock.NowMillis() + ttlMs
		e.wheel.Schedule(key, expiresAt)
	} else {
		e.wheel.Deschedule(key)
	}

	s := e.shardFor(key)
	s.mu.Lock()
	if existing, ok := s.items[key]; ok {
		s.items[key] = Entry{Value: value, Version: existing.Version + 1, ExpiresAt: expiresAt, HasExpiry: hasTTL}
	} else {
		s.items[key] = Entry{Value: value, Version: 1, ExpiresAt: expiresAt, HasExpiry: hasTTL}
	}
	s.mu.Unlock()

	e.touchAndEvict(key)
}

// Get returns the value for key, or ok=false on miss or expiry.
func (e *Engine) Get(key string) (string, bool) {
	now := e.clock.NowMillis()

	s := e.shardFor(key)
	s.mu.Lock()
	entry, ok := s.items[key]
	s.mu.Unlock()
	if !ok {
		metrics.CacheMisses.Inc()
		return "", false
	}

	if entry.HasExpiry && entry.ExpiresAt <= now {
		e.invalidateWithReason(key, "ttl")
		metrics.CacheMisses.Inc()
		return "", false
	}

	e.touchAndEvict(key)
	metrics.CacheHits.Inc()
	return entry.Value, true
}

// touchAndEvict records key's use and evicts the LRU victim if that pushed
// the list over capacity -- shared by Put and Get per spec §4.5.
func (e *Engine) touchAndEvict(key string) {
	e.lru.Touch(key)
	if !e.lru.OverCapacity() {
		return
	}
	victim, ok := e.lru.PopBack()
	if !ok || victim == key {
		return
	}
	e.wheel.Deschedule(victim)
	s := e.shardFor(victim)
	s.mu.Lock()
	delete(s.items, victim)
	s.mu.Unlock()
	metrics.CacheEvictions.WithLabelValues("lru").Inc()
}

// Invalidate removes key from index, LRU and wheel. Reports whether
// anything was actually present.
func (e *Engine) Invalidate(key string) bool {
	return e.invalidateWithReason(key, "invalidate")
}

func (e *Engine) invalidateWithReason(key, reason string) bool {
	e.wheel.Deschedule(key)

	s := e.shardFor(key)
	s.mu.Lock()
	_, hadIndex := s.items[key]
	delete(s.items, key)
	s.mu.Unlock()

	hadLRU := e.lru.Remove(key)
	present := hadIndex || hadLRU
	if present {
		metrics.CacheEvictions.WithLabelValues(reason).Inc()
	}
	return present
}

// Size returns the number of keys currently in the index.
func (e *Engine) Size() int {
	total := 0
	for _, s := range e.shards {
		s.mu.Lock()
		total += len(s.items)
		s.mu.Unlock()
	}
	return total
}

// AdvanceWheelToNow drains the timing wheel up to the current time,
// verifying each drained key against the index before invalidating it
// (verify-and-reinsert, spec §4.4/§4.5).
func (e *Engine) AdvanceWheelToNow() {
	now := e.clock.NowMillis()
	e.wheel.AdvanceTo(now, func(key string, nowMs uint64) {
		s := e.shardFor(key)
		s.mu.Lock()
		entry, ok := s.items[key]
		s.mu.Unlock()

		if !ok {
			return
		}
		if entry.HasExpiry && entry.ExpiresAt <= nowMs {
			e.invalidateWithReason(key, "ttl")
			return
		}
		if entry.HasExpiry {
			e.wheel.Schedule(key, entry.ExpiresAt)
		}
	})
}
