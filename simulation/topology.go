package simulation

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrDisconnectedTopology means the requested parameters produced a
// graph where some node cannot reach some other node. Convergence
// studies over such a graph are meaningless, so construction fails.
var ErrDisconnectedTopology = errors.New("topology is not connected")

type TopologyKind string

const (
	TopologyFull   TopologyKind = "full"
	TopologyRing   TopologyKind = "ring"
	TopologyStar   TopologyKind = "star"
	TopologyRandom TopologyKind = "random"
)

func ParseTopologyKind(s string) (TopologyKind, error) {
	switch TopologyKind(s) {
	case TopologyFull, TopologyRing, TopologyStar, TopologyRandom:
		return TopologyKind(s), nil
	default:
		return "", fmt.Errorf("unknown topology kind %q", s)
	}
}

// Peer is an outbound link: blocks forwarded to ID arrive after
// Latency simulated time units.
type Peer struct {
	ID      NodeID
	Latency float64
}

// Topology is the neighbor map every shape reduces to. Links are
// undirected and both directions carry the same latency.
type Topology struct {
	neighbors map[NodeID][]Peer
	ids       []NodeID
	latency   Distribution
	jitter    bool
	rng       *rand.Rand
}

// BuildTopology constructs the requested shape over the given node
// ids, drawing one latency per link from cfg.Latency. It fails with
// ErrDisconnectedTopology when the resulting graph is not connected
// (possible for the random shape with a low edge probability).
func BuildTopology(ids []NodeID, cfg TopologyConfig, rng *rand.Rand) (*Topology, error) {
	kind, err := ParseTopologyKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("topology needs at least one node")
	}
	t := &Topology{
		neighbors: make(map[NodeID][]Peer, len(ids)),
		ids:       append([]NodeID(nil), ids...),
		latency:   cfg.Latency,
		jitter:    cfg.Jitter,
		rng:       rng,
	}
	for _, id := range ids {
		t.neighbors[id] = nil
	}

	switch kind {
	case TopologyFull:
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				t.link(ids[i], ids[j])
			}
		}
	case TopologyRing:
		for i := 0; i < len(ids); i++ {
			t.link(ids[i], ids[(i+1)%len(ids)])
		}
	case TopologyStar:
		hub := ids[0]
		for _, id := range ids[1:] {
			t.link(hub, id)
		}
	case TopologyRandom:
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if rng.Float64() < cfg.EdgeProb {
					t.link(ids[i], ids[j])
				}
			}
		}
	}

	if !t.connected() {
		return nil, fmt.Errorf("%s topology over %d nodes: %w", kind, len(ids), ErrDisconnectedTopology)
	}
	return t, nil
}

func (t *Topology) link(a, b NodeID) {
	if a == b || t.hasLink(a, b) {
		return
	}
	latency := t.latency.Sample(t.rng)
	t.neighbors[a] = append(t.neighbors[a], Peer{ID: b, Latency: latency})
	t.neighbors[b] = append(t.neighbors[b], Peer{ID: a, Latency: latency})
}

func (t *Topology) hasLink(a, b NodeID) bool {
	for _, p := range t.neighbors[a] {
		if p.ID == b {
			return true
		}
	}
	return false
}

func (t *Topology) Neighbors(id NodeID) []Peer {
	return t.neighbors[id]
}

func (t *Topology) NodeIDs() []NodeID {
	return t.ids
}

// Delay returns the one-way delay for a message from a to b. With
// jitter enabled a fresh latency is sampled per message; otherwise the
// link latency drawn at construction is fixed.
func (t *Topology) Delay(a, b NodeID) (float64, error) {
	for _, p := range t.neighbors[a] {
		if p.ID == b {
			if t.jitter {
				return t.latency.Sample(t.rng), nil
			}
			return p.Latency, nil
		}
	}
	return 0, fmt.Errorf("no link between %d and %d", a, b)
}

func (t *Topology) connected() bool {
	if len(t.ids) == 0 {
		return false
	}
	seen := make(map[NodeID]bool, len(t.ids))
	frontier := []NodeID{t.ids[0]}
	seen[t.ids[0]] = true
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, p := range t.neighbors[cur] {
			if !seen[p.ID] {
				seen[p.ID] = true
				frontier = append(frontier, p.ID)
			}
		}
	}
	return len(seen) == len(t.ids)
}
