// Package wheel implements the hashed timing wheel described in spec §4.4:
// amortized O(1) schedule/deschedule of per-key expirations and O(k) drain
// per tick, grounded in the original source's DashSet-slots-plus-inverse-index
// design (_examples/original_source/apps/cache_node/src/core/services/cache/timing_wheel.rs),
// translated to Go's idiomatic mutex-per-slot + sync.Map equivalent.
package wheel

import (
	"sync"
	"sync/atomic"
)

type slot struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// Wheel is a circular array of slots holding keys whose expiration falls
// within a given tick range, plus an inverse index for O(1) reschedule.
type Wheel struct {
	slots  []*slot
	index  sync.Map // key string -> slot index (int)
	tickMs uint64
	size   uint64 // power of two
	cursor atomic.Uint64
}

// New creates a Wheel. size must be a power of two.
func New(size int, tickMs uint64, startMs uint64) *Wheel {
	if size <= 0 || size&(size-1) != 0 {
		panic("wheel: size must be a power of two")
	}
	if tickMs == 0 {
		panic("wheel: tickMs must be > 0")
	}
	w := &Wheel{
		slots:  make([]*slot, size),
		tickMs: tickMs,
		size:   uint64(size),
	}
	for i := range w.slots {
		w.slots[i] = &slot{keys: make(map[string]struct{})}
	}
	w.cursor.Store(startMs / tickMs)
	return w
}

// SlotFor returns the absolute tick and slot index for an absolute
// expiration timestamp.
func (w *Wheel) SlotFor(expiresAtMs uint64) (tick uint64, idx int) {
	t := expiresAtMs / w.tickMs
	return t, int(t & (w.size - 1))
}

// Schedule registers key to expire in the slot matching expiresAtMs,
// rescheduling it out of its previous slot if it was already registered.
func (w *Wheel) Schedule(key string, expiresAtMs uint64) {
	_, newIdx := w.SlotFor(expiresAtMs)

	if prev, ok := w.index.Load(key); ok {
		prevIdx := prev.(int)
		if prevIdx == newIdx {
			return
		}
		s := w.slots[prevIdx]
		s.mu.Lock()
		delete(s.keys, key)
		s.mu.Unlock()
	}

	w.index.Store(key, newIdx)
	s := w.slots[newIdx]
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

// Deschedule removes key from its current slot. No-op if absent.
func (w *Wheel) Deschedule(key string) {
	v, ok := w.index.LoadAndDelete(key)
	if !ok {
		return
	}
	idx := v.(int)
	s := w.slots[idx]
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// AdvanceTo drains every slot between the wheel's current cursor and the
// tick for nowMs, invoking callback once per drained key. callback must not
// block and may call Schedule again (verify-and-reinsert).
func (w *Wheel) AdvanceTo(nowMs uint64, callback func(key string, nowMs uint64)) {
	targetTick := nowMs / w.tickMs
	cur := w.cursor.Load()

	for cur < targetTick {
		idx := int(cur & (w.size - 1))
		s := w.slots[idx]

		s.mu.Lock()
		keys := make([]string, 0, len(s.keys))
		for k := range s.keys {
			keys = append(keys, k)
		}
		for _, k := range keys {
			delete(s.keys, k)
		}
		s.mu.Unlock()

		for _, k := range keys {
			w.index.CompareAndDelete(k, idx)
			callback(k, nowMs)
		}

		cur++
		w.cursor.Store(cur)
	}
}

// Cursor returns the current absolute tick count.
func (w *Wheel) Cursor() uint64 { return w.cursor.Load() }

// TickMs returns the wheel's configured tick width in milliseconds.
func (w *Wheel) TickMs() uint64 { return w.tickMs }
