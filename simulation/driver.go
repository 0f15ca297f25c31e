package simulation

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"

	"github.com/dominant-strategies/go-quai/event"
	"go.uber.org/zap"
)

// Simulation is the explicit context threaded through every component
// operation: the event queue, the clock, the shared block store, the
// rng. Independent runs in one process never share state.
type Simulation struct {
	cfg     Config
	rng     *rand.Rand
	queue   *EventQueue
	topo    *Topology
	store   *BlockStore
	engine  Engine
	nodes   map[NodeID]*Node
	order   []NodeID
	genesis *Block

	clock        float64
	totalWeight  float64
	blocksMined  uint64
	miningHalted bool

	trace     []TraceEvent
	traceSeq  uint64
	traceFeed event.Feed

	log *zap.Logger
}

// NewSimulation validates the configuration and builds the topology,
// block store, consensus engine and node set. All configuration
// problems, including a disconnected topology, surface here before any
// event is dispatched.
func NewSimulation(cfg Config, log *zap.Logger) (*Simulation, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	consensus, _ := ParseConsensus(cfg.Consensus)

	sim := &Simulation{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		queue:  NewEventQueue(),
		store:  NewBlockStore(cfg.StoreCapacity),
		engine: NewEngine(consensus),
		nodes:  make(map[NodeID]*Node, cfg.NodeCount),
		log:    log,
	}

	ids := make([]NodeID, cfg.NodeCount)
	for i := range ids {
		ids[i] = NodeID(i)
	}
	sim.order = ids

	topo, err := BuildTopology(ids, cfg.Topology, sim.rng)
	if err != nil {
		return nil, &ConfigError{Field: "topology", Err: err}
	}
	sim.topo = topo

	sim.genesis = sim.store.Intern(GenesisBlock())
	for _, id := range ids {
		var weight float64
		if len(cfg.NodeWeights) > 0 {
			weight = cfg.NodeWeights[id]
		} else {
			weight = cfg.Weights.Sample(sim.rng)
		}
		sim.totalWeight += weight
		sim.nodes[id] = NewNode(sim, id, weight, sim.engine, NewLedger(sim.store, sim.genesis))
	}
	if sim.totalWeight <= 0 {
		return nil, configErrorf("weights", "total network weight must be positive")
	}
	return sim, nil
}

func (s *Simulation) Config() Config {
	return s.cfg
}

func (s *Simulation) Clock() float64 {
	return s.clock
}

func (s *Simulation) Genesis() *Block {
	return s.genesis
}

func (s *Simulation) Node(id NodeID) *Node {
	return s.nodes[id]
}

// SubscribeTraceEvents delivers every trace record to ch as it is
// emitted. Collaborators that prefer batch consumption read
// Result.Trace after Run returns instead.
func (s *Simulation) SubscribeTraceEvents(ch chan<- TraceEvent) event.Subscription {
	return s.traceFeed.Subscribe(ch)
}

// Run seeds the initial events and pumps the queue until it drains or
// a horizon is reached. The terminal condition is checked before every
// dispatch.
func (s *Simulation) Run() (*Result, error) {
	for _, id := range s.order {
		node := s.nodes[id]
		if node.weight <= 0 {
			continue
		}
		start := 0.0
		if s.cfg.StartJitter > 0 {
			start = s.rng.Float64() * s.cfg.StartJitter
		}
		s.queue.Schedule(Event{
			Kind:   MineAttempt,
			At:     start,
			Target: id,
			From:   -1,
			Token:  node.ledger.Head(),
		})
	}
	if s.cfg.ConsensusInterval > 0 {
		for _, id := range s.order {
			s.queue.Schedule(Event{
				Kind:   ForkCheck,
				At:     s.cfg.ConsensusInterval,
				Target: id,
				From:   -1,
			})
		}
	}

	for !s.queue.Empty() {
		ev, err := s.queue.PopNext()
		if err != nil {
			return nil, fmt.Errorf("dispatch loop: %w", err)
		}
		if s.cfg.Horizon.MaxTime > 0 && ev.At > s.cfg.Horizon.MaxTime {
			break
		}
		if ev.At < s.clock {
			return nil, fmt.Errorf("clock moved backwards: %v -> %v", s.clock, ev.At)
		}
		s.clock = ev.At

		node, ok := s.nodes[ev.Target]
		if !ok {
			return nil, fmt.Errorf("event addressed to unknown node %d", ev.Target)
		}
		switch ev.Kind {
		case MineAttempt:
			node.handleMineAttempt(ev)
		case BlockArrival:
			node.handleBlockArrival(ev)
		case ForkCheck:
			node.handleForkCheck(ev)
		}
	}

	s.reportUnresolved()
	return s.result(), nil
}

// reportUnresolved traces blocks still stuck in pending pools at halt.
// Over a connected topology with no drops this should never fire; its
// occurrence signals a partition or a scheduling bug.
func (s *Simulation) reportUnresolved() {
	for _, id := range s.order {
		node := s.nodes[id]
		parents := make([]Hash, 0, len(node.pending))
		for parent := range node.pending {
			parents = append(parents, parent)
		}
		sort.Slice(parents, func(i, j int) bool {
			return bytes.Compare(parents[i].Bytes(), parents[j].Bytes()) < 0
		})
		for _, parent := range parents {
			for _, w := range node.pending[parent] {
				s.emit(TraceEvent{
					Time:   s.clock,
					Node:   id,
					Block:  w.block.Hash(),
					Parent: parent,
					Kind:   KindOrphanUnresolved,
					Head:   node.ledger.Head(),
					Height: w.block.Number(),
				})
			}
		}
	}
}

func (s *Simulation) result() *Result {
	consensus, _ := ParseConsensus(s.cfg.Consensus)
	snapshots := make(map[NodeID]NodeSnapshot, len(s.nodes))
	for _, id := range s.order {
		snapshots[id] = s.nodes[id].snapshot()
	}
	return &Result{
		Consensus: consensus,
		FinalTime: s.clock,
		Genesis:   s.genesis.Hash(),
		Trace:     s.trace,
		Snapshots: snapshots,
	}
}

func (s *Simulation) recordMined(n *Node, block *Block) {
	s.emit(TraceEvent{
		Time:   s.clock,
		Node:   n.id,
		Block:  block.Hash(),
		Parent: block.ParentHash(),
		Kind:   KindMined,
		Head:   n.ledger.Head(),
		Height: block.Number(),
	})
	s.blocksMined++
	if s.cfg.Horizon.MaxBlocks > 0 && s.blocksMined >= s.cfg.Horizon.MaxBlocks {
		// Mining stops; queued propagation still drains so views converge.
		s.miningHalted = true
	}
}

func (s *Simulation) emit(ev TraceEvent) {
	ev.Seq = s.traceSeq
	s.traceSeq++
	s.trace = append(s.trace, ev)
	s.traceFeed.Send(ev)
	s.log.Debug("trace",
		zap.Float64("time", ev.Time),
		zap.Int("node", int(ev.Node)),
		zap.String("kind", string(ev.Kind)),
		zap.String("block", ev.Block.String()),
	)
}
