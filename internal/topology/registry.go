// Package topology implements the primary/secondary replica group registry
// (spec §4.7), grounded on the original source's node/group model
// (apps/cache_master/src/core/domain/models/node.rs and the
// assign/remove use-cases). Members never hold a handle back to their
// group; they store only the primary's id, breaking the membership cycle
// per DESIGN NOTES §9.
package topology

import (
	"sort"
	"sync"

	"github.com/ocx/cachecluster/internal/cacheerr"
)

type group[H any] struct {
	mu      sync.Mutex
	members map[string]H
}

// Registry maps a primary-id to its replica group and a flat node-id to
// connection-handle index, per spec §4.7. H is the connection-handle type
// (dispatch.Requester in production, each handle a dispatch.BreakerRequester
// around a socket.Multiplexer; a fake in tests).
type Registry[H any] struct {
	mu            sync.Mutex // guards add/remove of groups and memberPrimary/nodes
	groups        map[string]*group[H]
	memberPrimary map[string]string // member-id -> primary-id
	nodes         map[string]H
}

// New creates an empty Registry.
func New[H any]() *Registry[H] {
	return &Registry[H]{
		groups:        make(map[string]*group[H]),
		memberPrimary: make(map[string]string),
		nodes:         make(map[string]H),
	}
}

// RegisterConnection records (or overwrites) the handle for node-id.
func (r *Registry[H]) RegisterConnection(id string, handle H) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id] = handle
}

// AddPrimary creates a new group keyed by id containing id as its sole
// member. Returns false if a group already exists for id.
func (r *Registry[H]) AddPrimary(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[id]; ok {
		return false, nil
	}

	handle, hasHandle := r.nodes[id]
	g := &group[H]{members: make(map[string]H)}
	if hasHandle {
		g.members[id] = handle
	} else {
		var zero H
		g.members[id] = zero
	}
	r.groups[id] = g
	r.memberPrimary[id] = id
	return true, nil
}

// AddSecondary inserts id into primaryID's group. Requires the group to
// already exist. Returns false if id is already a member of that group.
func (r *Registry[H]) AddSecondary(primaryID, id string) (bool, error) {
	r.mu.Lock()
	g, ok := r.groups[primaryID]
	handle, hasHandle := r.nodes[id]
	r.mu.Unlock()

	if !ok {
		return false, cacheerr.New(cacheerr.KindNodeNotFound, "primary group does not exist: "+primaryID)
	}

	g.mu.Lock()
	if _, already := g.members[id]; already {
		g.mu.Unlock()
		return false, nil
	}
	if hasHandle {
		g.members[id] = handle
	} else {
		var zero H
		g.members[id] = zero
	}
	g.mu.Unlock()

	r.mu.Lock()
	r.memberPrimary[id] = primaryID
	r.mu.Unlock()
	return true, nil
}

// PickPrimaryWithFewestMembers returns the primary-id with the smallest
// group, breaking ties lexicographically so repeated calls against
// unchanged state agree.
func (r *Registry[H]) PickPrimaryWithFewestMembers() (string, bool) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)

	best := ""
	bestCount := -1
	for _, id := range ids {
		n := r.CountMembers(id)
		if bestCount == -1 || n < bestCount {
			best, bestCount = id, n
		}
	}
	return best, true
}

// CountMembers returns the size of primaryID's group, or 0 if it doesn't exist.
func (r *Registry[H]) CountMembers(primaryID string) int {
	r.mu.Lock()
	g, ok := r.groups[primaryID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// MembersOf returns the handles for the replica group nodeID belongs to
// (whether nodeID is itself the primary or one of its secondaries).
// Unknown nodeID yields an empty slice.
func (r *Registry[H]) MembersOf(nodeID string) []H {
	r.mu.Lock()
	primaryID, ok := r.memberPrimary[nodeID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	g, ok := r.groups[primaryID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]H, 0, len(g.members))
	for _, h := range g.members {
		out = append(out, h)
	}
	return out
}

// Snapshot returns primary-id -> member-ids for every group, for admin/debug
// surfaces (the HTTP /topology endpoint). It copies out of the locked state
// so callers never observe a torn view.
func (r *Registry[H]) Snapshot() map[string][]string {
	r.mu.Lock()
	primaries := make([]string, 0, len(r.groups))
	groups := make(map[string]*group[H], len(r.groups))
	for id, g := range r.groups {
		primaries = append(primaries, id)
		groups[id] = g
	}
	r.mu.Unlock()

	out := make(map[string][]string, len(primaries))
	for _, id := range primaries {
		g := groups[id]
		g.mu.Lock()
		members := make([]string, 0, len(g.members))
		for memberID := range g.members {
			members = append(members, memberID)
		}
		g.mu.Unlock()
		sort.Strings(members)
		out[id] = members
	}
	return out
}

// RemoveNode removes nodeID from the topology. A secondary is dropped from
// its primary's group (the group itself is dropped if that empties it, a
// defensive check that should never trigger since a primary is always a
// member of its own group). Removing a primary that still has secondaries
// is refused -- promotion/re-parenting policy is an open question the
// source leaves unresolved (spec §9); callers must pick a concrete primary
// to re-home secondaries under before retrying.
//
// Reports false (no error) if nodeID is unknown.
func (r *Registry[H]) RemoveNode(nodeID string) (bool, error) {
	r.mu.Lock()
	primaryID, isMember := r.memberPrimary[nodeID]
	_, isKnown := r.nodes[nodeID]
	r.mu.Unlock()

	if !isMember && !isKnown {
		return false, nil
	}

	if isMember {
		if primaryID == nodeID {
			// nodeID is a primary.
			if r.CountMembers(nodeID) > 1 {
				return false, cacheerr.New(cacheerr.KindConnectionError,
					"cannot remove primary with active secondaries; promote or re-parent them first")
			}
			r.mu.Lock()
			delete(r.groups, nodeID)
			delete(r.memberPrimary, nodeID)
			r.mu.Unlock()
		} else {
			r.mu.Lock()
			g := r.groups[primaryID]
			r.mu.Unlock()
			if g != nil {
				g.mu.Lock()
				delete(g.members, nodeID)
				empty := len(g.members) == 0
				g.mu.Unlock()
				if empty {
					r.mu.Lock()
					delete(r.groups, primaryID)
					r.mu.Unlock()
				}
			}
			r.mu.Lock()
			delete(r.memberPrimary, nodeID)
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	delete(r.nodes, nodeID)
	r.mu.Unlock()
	return true, nil
}
