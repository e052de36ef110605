// Package hashring implements the consistent-hash ring (spec §4.6),
// grounded on the original source's
// apps/cache_master/src/infrastructure/adapters/services/dashmap_consistent_hasher_service.rs
// (a BTreeMap<u64, NodeID> with 128 virtual replicas per node). Go has no
// built-in sorted map, so the ring keeps a sorted slice of hashes and
// binary-searches it, which gives the same O(log n) locate as the
// original's BTreeMap::range.
package hashring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/ocx/cachecluster/internal/metrics"
)

// VirtualNodes is the number of synthesized ring positions per real node.
const VirtualNodes = 128

// Ring is a consistent-hash ring mapping 64-bit key hashes to node ids via
// virtual nodes. Hashing is xxhash64, a deterministic non-cryptographic
// function, applied to the stringified input -- the same non-cryptographic
// contract the ghjramos-aistore example leans on for its own placement hash.
type Ring struct {
	mu      sync.RWMutex
	hashes  []uint64
	byHash  map[uint64]string
	present map[string]struct{}
	vnodes  int
}

// New creates an empty ring with the default virtual-node count.
func New() *Ring {
	return NewWithVirtualNodes(VirtualNodes)
}

// NewWithVirtualNodes creates an empty ring with a custom vnode count,
// mainly useful for tests that want a smaller ring to reason about.
func NewWithVirtualNodes(vnodes int) *Ring {
	return &Ring{
		byHash:  make(map[uint64]string),
		present: make(map[string]struct{}),
		vnodes:  vnodes,
	}
}

// HashKey hashes an arbitrary string (a cache key, or a vnode label) to its
// 64-bit ring position.
func HashKey(s string) uint64 {
	return xxhash.ChecksumString64(s)
}

// AddNode inserts id's virtual nodes into the ring. Returns false without
// modifying the ring if id is already present.
func (r *Ring) AddNode(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.present[id]; ok {
		return false
	}
	r.present[id] = struct{}{}

	for i := 0; i < r.vnodes; i++ {
		h := HashKey(fmt.Sprintf("%s#%d", id, i))
		if _, exists := r.byHash[h]; exists {
			continue // extremely unlikely collision; keep first writer
		}
		r.byHash[h] = id
		r.hashes = insertSorted(r.hashes, h)
	}
	metrics.RingSize.Set(float64(len(r.present)))
	return true
}

// RemoveNode removes all of id's virtual nodes from the ring. Returns false
// if id was never present.
func (r *Ring) RemoveNode(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.present[id]; !ok {
		return false
	}
	delete(r.present, id)

	kept := r.hashes[:0:0]
	for _, h := range r.hashes {
		if r.byHash[h] == id {
			delete(r.byHash, h)
			continue
		}
		kept = append(kept, h)
	}
	r.hashes = kept
	metrics.RingSize.Set(float64(len(r.present)))
	return true
}

// HasNode reports whether id currently owns a ring position.
func (r *Ring) HasNode(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.present[id]
	return ok
}

// Locate finds the node owning the smallest ring entry >= hash, wrapping to
// the smallest entry if hash is past the end. An empty ring returns ok=false.
func (r *Ring) Locate(hash uint64) (nodeID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return "", false
	}

	idx := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= hash })
	if idx == len(r.hashes) {
		idx = 0
	}
	return r.byHash[r.hashes[idx]], true
}

func insertSorted(hashes []uint64, h uint64) []uint64 {
	idx := sort.Search(len(hashes), func(i int) bool { return hashes[i] >= h })
	hashes = append(hashes, 0)
	copy(hashes[idx+1:], hashes[idx:])
	hashes[idx] = h
	return hashes
}
