// Package usecase implements the validation + orchestration entry points
// (spec §4.10) sitting above the ring and topology registry: node lifecycle
// (assign/remove) and identification-line parsing. Grounded on the original
// source's apps/cache_master/src/core/domain/models/node.rs (NodeType /
// EntryNode::from_str) for the identification grammar, and on the
// assign/remove use-cases described narratively in spec §4.10 (the Rust
// files themselves live under usecases/ in original_source but were not
// included in the retrieval pack's filtered index).
package usecase

import (
	"strings"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/dispatch"
	"github.com/ocx/cachecluster/internal/wire"
)

// NodeKind is the role a connecting peer announces on its identification
// line: "MASTER <id>", "REPLICA <id>", or a bare "<id>" (a client).
type NodeKind int

const (
	KindClient NodeKind = iota
	KindPrimary
	KindSecondary
)

func (k NodeKind) String() string {
	switch k {
	case KindPrimary:
		return "PRIMARY"
	case KindSecondary:
		return "SECONDARY"
	default:
		return "CLIENT"
	}
}

// ParseIdentification parses a connection's first line per spec §6: "MASTER
// <id>" is a primary, "REPLICA <id>" is a secondary, a bare "<id>" alone is
// a client. An empty line yields FirstConnectionEmpty. A trailing \r\n (as
// left by a line reader) is ignored.
func ParseIdentification(line string) (kind NodeKind, id string, err error) {
	line = strings.TrimRight(line, "\r\n")
	first, rest, ok := wire.NextToken(line)
	if !ok || first == "" {
		return KindClient, "", cacheerr.New(cacheerr.KindFirstConnectionEmpty, "identification line is empty")
	}

	second, _, hasSecond := wire.NextToken(rest)
	switch {
	case first == "MASTER" && hasSecond && second != "":
		return KindPrimary, second, nil
	case first == "REPLICA" && hasSecond && second != "":
		return KindSecondary, second, nil
	case hasSecond:
		// A bare client id is "<id>" alone (spec §6); a second token after a
		// non-MASTER/REPLICA id is the (Some(id), Some(extra)) case
		// node_kind.rs rejects rather than guessing which token is the id.
		return KindClient, "", cacheerr.New(cacheerr.KindBadRequest, "identification line has trailing tokens after client id")
	default:
		return KindClient, first, nil
	}
}

// Ring is the subset of hashring.Ring the use-case layer needs.
type Ring interface {
	AddNode(id string) bool
	RemoveNode(id string) bool
}

// Topology is the subset of topology.Registry the use-case layer needs.
type Topology interface {
	RegisterConnection(id string, handle dispatch.Requester)
	AddPrimary(id string) (bool, error)
	AddSecondary(primaryID, id string) (bool, error)
	PickPrimaryWithFewestMembers() (string, bool)
	CountMembers(primaryID string) int
	RemoveNode(id string) (bool, error)
}

// UseCase wires a Ring and a Topology behind the node-lifecycle operations.
type UseCase struct {
	Ring     Ring
	Topology Topology
}

// New builds a UseCase over the given collaborators.
func New(ring Ring, topo Topology) *UseCase {
	return &UseCase{Ring: ring, Topology: topo}
}

// AssignNode places a newly-identified storage node into the cluster. A
// primary claims a ring position and becomes its own group's sole member; a
// secondary joins whichever existing primary currently has the fewest
// members, and never touches the ring (only primaries own ring positions).
func (u *UseCase) AssignNode(id string, kind NodeKind, handle dispatch.Requester) error {
	if id == "" {
		return cacheerr.New(cacheerr.KindFirstConnectionEmpty, "node id is empty")
	}

	switch kind {
	case KindPrimary:
		u.Topology.RegisterConnection(id, handle)
		if !u.Ring.AddNode(id) {
			return cacheerr.New(cacheerr.KindConnectionError, "node id already present on ring: "+id)
		}
		_, err := u.Topology.AddPrimary(id)
		return err
	case KindSecondary:
		target, ok := u.Topology.PickPrimaryWithFewestMembers()
		if !ok {
			return cacheerr.New(cacheerr.KindConnectionError, "no nodes in network")
		}
		u.Topology.RegisterConnection(id, handle)
		_, err := u.Topology.AddSecondary(target, id)
		return err
	default:
		return cacheerr.New(cacheerr.KindBadRequest, "assign_node requires a primary or secondary kind")
	}
}

// RemoveNode tears an id out of the cluster. If it was the sole member of
// its group, its ring position is reclaimed too; per §9's open question, a
// primary with surviving secondaries is left in place by the topology layer
// and its error is surfaced verbatim.
func (u *UseCase) RemoveNode(id string) error {
	if u.Topology.CountMembers(id) <= 1 {
		u.Ring.RemoveNode(id)
	}

	ok, err := u.Topology.RemoveNode(id)
	if err != nil {
		return err
	}
	if !ok {
		return cacheerr.New(cacheerr.KindNodeNotFound, "no such node: "+id)
	}
	return nil
}
