// Package router implements the request router (spec §4.9): translate
// PING/PUT/GET actions into a ring lookup plus a fan-out dispatch. There is
// no single original_source/ file for this -- it is the Go expression of
// logic the Rust use-cases (cache_master/src/core/usecases) spread across
// several files, grounded here on dashmap_consistent_hasher_service.rs for
// the ring step and node.rs/the topology use-cases for the group step.
package router

import (
	"context"
	"strconv"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/dispatch"
	"github.com/ocx/cachecluster/internal/hashring"
	"github.com/ocx/cachecluster/internal/wire"
)

// Ring is the subset of hashring.Ring the router needs, narrowed so tests
// can substitute a fake per DESIGN NOTES §9.
type Ring interface {
	Locate(hash uint64) (nodeID string, ok bool)
}

// Topology is the subset of topology.Registry the router needs.
type Topology interface {
	MembersOf(nodeID string) []dispatch.Requester
}

// Router owns no state of its own beyond its two collaborators; it is safe
// to share across connections.
type Router struct {
	Ring     Ring
	Topology Topology
}

// New builds a Router over the given ring and topology collaborators.
func New(ring Ring, topo Topology) *Router {
	return &Router{Ring: ring, Topology: topo}
}

// HandleFrame dispatches one parsed REQ to the matching action and renders
// the outcome as a RES code/payload pair, following the §7 taxonomy (2xx
// success, 4xx client error, 5xx everything else).
func (r *Router) HandleFrame(ctx context.Context, req wire.Req) (code int, payload string) {
	switch req.Action {
	case "PING":
		return r.Ping()
	case "PUT":
		key, value, ttl, err := parsePut(req.Payload)
		if err != nil {
			return cacheerr.HTTPLikeStatus(cacheerr.KindBadRequest), "ERROR " + err.Error()
		}
		return r.Put(ctx, key, value, ttl)
	case "GET":
		key, _, ok := wire.NextToken(req.Payload)
		if !ok {
			key = ""
		}
		return r.Get(ctx, key)
	default:
		return cacheerr.HTTPLikeStatus(cacheerr.KindBadRequest), "ERROR unknown action " + req.Action
	}
}

// Ping always succeeds so long as the connection is alive (spec §7).
func (r *Router) Ping() (int, string) {
	return 200, "PONG"
}

// Put locates the owning node, fans the PUT out across its replica group,
// and returns the winning response translated to a RES code/payload.
func (r *Router) Put(ctx context.Context, key, value string, ttlMs *uint64) (int, string) {
	if key == "" {
		return cacheerr.HTTPLikeStatus(cacheerr.KindBadRequest), "ERROR Key is empty"
	}
	if value == "" {
		return cacheerr.HTTPLikeStatus(cacheerr.KindBadRequest), "ERROR Value is empty"
	}

	members, status, msg, ok := r.locateGroup(key)
	if !ok {
		return status, msg
	}

	payload := key + " " + wire.Quote(value)
	if ttlMs != nil {
		payload += " " + strconv.FormatUint(*ttlMs, 10)
	}

	resp, err := dispatch.Dispatch(ctx, members, "PUT", payload)
	if err != nil {
		return errToStatus(err)
	}
	if resp.Code < 200 || resp.Code >= 300 {
		return resp.Code, resp.Payload
	}
	return 200, ""
}

// Get locates the owning node, fans the GET out, and returns the winning
// value (absent payload meaning a miss, per spec §4.9).
func (r *Router) Get(ctx context.Context, key string) (int, string) {
	if key == "" {
		return cacheerr.HTTPLikeStatus(cacheerr.KindBadRequest), "ERROR Key is empty"
	}

	members, status, msg, ok := r.locateGroup(key)
	if !ok {
		return status, msg
	}

	resp, err := dispatch.Dispatch(ctx, members, "GET", key)
	if err != nil {
		return errToStatus(err)
	}
	return resp.Code, resp.Payload
}

func (r *Router) locateGroup(key string) (members []dispatch.Requester, status int, msg string, ok bool) {
	h := hashring.HashKey(key)
	nodeID, found := r.Ring.Locate(h)
	if !found {
		return nil, cacheerr.HTTPLikeStatus(cacheerr.KindNodeNotFound), "ERROR no node for key", false
	}

	members = r.Topology.MembersOf(nodeID)
	if len(members) == 0 {
		return nil, cacheerr.HTTPLikeStatus(cacheerr.KindConnectionError), "ERROR replica group is empty", false
	}
	return members, 0, "", true
}

func errToStatus(err error) (int, string) {
	kind := cacheerr.KindConnectionError
	if ce, ok := err.(*cacheerr.Error); ok {
		kind = ce.Kind
	}
	return cacheerr.HTTPLikeStatus(kind), "ERROR " + err.Error()
}

// parsePut splits a PUT payload "key \"value\" [ttl_ms]" into its fields.
// The grammar is intentionally strict: §9's open question on ambiguous
// escaped-quote payloads says to reject rather than guess, so any leftover
// trailing garbage after an optional integer TTL is a BadRequest.
func parsePut(payload string) (key, value string, ttlMs *uint64, err error) {
	keyTok, rest, ok := wire.NextToken(payload)
	if !ok {
		return "", "", nil, cacheerr.New(cacheerr.KindBadRequest, "PUT payload missing key")
	}
	valueTok, rest2, ok := wire.NextToken(rest)
	if !ok {
		return "", "", nil, cacheerr.New(cacheerr.KindBadRequest, "PUT payload missing value")
	}

	ttlTok, rest3, hasTTL := wire.NextToken(rest2)
	if hasTTL {
		if _, leftover, more := wire.NextToken(rest3); more || leftover != "" {
			return "", "", nil, cacheerr.New(cacheerr.KindBadRequest, "PUT payload has trailing tokens after TTL")
		}
		n, convErr := strconv.ParseUint(ttlTok, 10, 64)
		if convErr != nil {
			return "", "", nil, cacheerr.Wrap(cacheerr.KindBadRequest, "PUT TTL is not an integer", convErr)
		}
		return keyTok, valueTok, &n, nil
	}
	return keyTok, valueTok, nil, nil
}
