package simulation

import (
	"go.uber.org/zap"
)

type NodeState uint8

const (
	StateIdle NodeState = iota
	StateMining
	StateAwaitingAncestor
)

func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMining:
		return "mining"
	case StateAwaitingAncestor:
		return "awaiting-ancestor"
	default:
		return "unknown"
	}
}

// pendingBlock is a block received before its parent, held until the
// ancestor arrives via its own propagation. Flooding over a connected
// graph guarantees that eventually happens.
type pendingBlock struct {
	block *Block
	from  NodeID
}

// Node is one network participant: its ledger view, pending pool,
// consensus weight, and the handlers the driver dispatches events to.
// All of a node's mutable state is touched only while its own events
// dispatch, so the single-threaded loop needs no locking.
type Node struct {
	id      NodeID
	weight  float64
	state   NodeState
	ledger  *Ledger
	pending map[Hash][]pendingBlock
	engine  Engine
	sim     *Simulation
	log     *zap.Logger
}

func NewNode(sim *Simulation, id NodeID, weight float64, engine Engine, ledger *Ledger) *Node {
	state := StateIdle
	if weight > 0 {
		state = StateMining
	}
	return &Node{
		id:      id,
		weight:  weight,
		state:   state,
		ledger:  ledger,
		pending: make(map[Hash][]pendingBlock),
		engine:  engine,
		sim:     sim,
		log:     sim.log.With(zap.Int("node", int(id))),
	}
}

func (n *Node) ID() NodeID {
	return n.id
}

func (n *Node) Weight() float64 {
	return n.weight
}

func (n *Node) State() NodeState {
	return n.state
}

func (n *Node) Ledger() *Ledger {
	return n.ledger
}

// handleMineAttempt fires when this node's simulated mining delay
// elapses. A token that no longer matches the head means the attempt
// was superseded by a newer one scheduled at the head switch; it is a
// no-op.
func (n *Node) handleMineAttempt(ev Event) {
	if n.sim.miningHalted || n.weight <= 0 {
		return
	}
	if ev.Token != n.ledger.Head() {
		return // stale attempt, a fresh one is outstanding
	}
	parent := n.ledger.HeadBlock()
	block := n.mintBlock(parent)
	if err := n.ledger.Insert(block, n.sim.clock); err != nil {
		n.log.Error("insert own block", zap.Error(err))
		return
	}
	n.updateHead()
	n.sim.recordMined(n, block)
	n.relayBlock(block, n.id)
	n.scheduleNextAttempt()
}

func (n *Node) mintBlock(parent *Block) *Block {
	nonce := n.sim.rng.Uint64()
	if nonce == 0 {
		nonce = 1
	}
	block := NewBlock(parent, n.id, n.sim.clock, n.weight, EncodeNonce(nonce), nil)
	return n.sim.store.Intern(block)
}

// handleBlockArrival processes a block forwarded by a neighbor.
func (n *Node) handleBlockArrival(ev Event) {
	block := ev.Block
	if n.ledger.Contains(block.Hash()) {
		return // each node accepts and forwards each distinct block once
	}
	if !n.ledger.Contains(block.ParentHash()) {
		n.bufferOrphan(block, ev.From)
		return
	}
	n.acceptBlock(block, ev.From)
}

func (n *Node) bufferOrphan(block *Block, from NodeID) {
	parent := block.ParentHash()
	for _, waiting := range n.pending[parent] {
		if waiting.block.Hash() == block.Hash() {
			return
		}
	}
	n.pending[parent] = append(n.pending[parent], pendingBlock{block: block, from: from})
	n.state = StateAwaitingAncestor
	n.sim.emit(TraceEvent{
		Time:   n.sim.clock,
		Node:   n.id,
		Block:  block.Hash(),
		Parent: parent,
		Kind:   KindOrphanBuffered,
		Head:   n.ledger.Head(),
		Height: block.Number(),
	})
}

// acceptBlock validates, inserts, recomputes the head, forwards to
// every neighbor but the sender, and drains any descendants that were
// waiting on this block.
func (n *Node) acceptBlock(block *Block, from NodeID) {
	if !n.engine.Validate(block, n.ledger) {
		n.sim.emit(TraceEvent{
			Time:   n.sim.clock,
			Node:   n.id,
			Block:  block.Hash(),
			Parent: block.ParentHash(),
			Kind:   KindRejected,
			Head:   n.ledger.Head(),
			Height: block.Number(),
		})
		return
	}
	block = n.sim.store.Intern(block)
	if err := n.ledger.Insert(block, n.sim.clock); err != nil {
		n.log.Error("insert block", zap.Error(err))
		return
	}
	n.sim.emit(TraceEvent{
		Time:   n.sim.clock,
		Node:   n.id,
		Block:  block.Hash(),
		Parent: block.ParentHash(),
		Kind:   KindArrival,
		Head:   n.ledger.Head(),
		Height: block.Number(),
	})
	if n.updateHead() {
		n.scheduleNextAttempt()
	}
	n.relayBlock(block, from)
	n.drainPending(block.Hash())
}

func (n *Node) drainPending(parent Hash) {
	waiting, ok := n.pending[parent]
	if !ok {
		return
	}
	delete(n.pending, parent)
	for _, w := range waiting {
		if n.ledger.Contains(w.block.Hash()) {
			continue
		}
		n.acceptBlock(w.block, w.from)
	}
	if len(n.pending) == 0 && n.state == StateAwaitingAncestor {
		if n.weight > 0 {
			n.state = StateMining
		} else {
			n.state = StateIdle
		}
	}
}

// handleForkCheck periodically recomputes the head so protocols whose
// choice depends on accumulated subtree weight (GHOST) re-evaluate
// even without a new arrival.
func (n *Node) handleForkCheck(ev Event) {
	if n.updateHead() {
		n.scheduleNextAttempt()
	}
	if n.sim.cfg.ConsensusInterval > 0 && !n.sim.miningHalted {
		n.sim.queue.Schedule(Event{
			Kind:   ForkCheck,
			At:     n.sim.clock + n.sim.cfg.ConsensusInterval,
			Target: n.id,
			From:   -1,
		})
	}
}

// updateHead asks the engine for the canonical head and commits it,
// reporting whether it moved.
func (n *Node) updateHead() bool {
	head := n.engine.SelectHead(n.ledger)
	if head == n.ledger.Head() {
		return false
	}
	if err := n.ledger.SetHead(head); err != nil {
		n.log.Error("set head", zap.Error(err))
		return false
	}
	headBlock := n.ledger.HeadBlock()
	n.sim.emit(TraceEvent{
		Time:   n.sim.clock,
		Node:   n.id,
		Block:  head,
		Parent: headBlock.ParentHash(),
		Kind:   KindHeadChange,
		Head:   head,
		Height: headBlock.Number(),
	})
	return true
}

// relayBlock floods the block to all neighbors except the sender.
// Exactly-once forwarding falls out of the duplicate check on arrival:
// a node relays only when the block is new to its ledger.
func (n *Node) relayBlock(block *Block, exclude NodeID) {
	for _, peer := range n.sim.topo.Neighbors(n.id) {
		if peer.ID == exclude {
			continue
		}
		if n.sim.cfg.DropRate > 0 && n.sim.rng.Float64() < n.sim.cfg.DropRate {
			n.sim.emit(TraceEvent{
				Time:   n.sim.clock,
				Node:   peer.ID,
				Block:  block.Hash(),
				Parent: block.ParentHash(),
				Kind:   KindDropped,
				Head:   n.ledger.Head(),
				Height: block.Number(),
			})
			continue
		}
		delay, err := n.sim.topo.Delay(n.id, peer.ID)
		if err != nil {
			n.log.Error("relay", zap.Error(err))
			continue
		}
		n.sim.queue.Schedule(Event{
			Kind:   BlockArrival,
			At:     n.sim.clock + delay,
			Target: peer.ID,
			Block:  block,
			From:   n.id,
		})
	}
}

// scheduleNextAttempt rolls this node's next mining delay. The delay
// is exponential with rate proportional to the node's share of the
// total network weight, so the whole network produces one block per
// BlockInterval in expectation.
func (n *Node) scheduleNextAttempt() {
	if n.weight <= 0 || n.sim.miningHalted {
		return
	}
	delay := Distribution{Kind: DistExponential, Mean: n.sim.cfg.BlockInterval * n.sim.totalWeight / n.weight}.Sample(n.sim.rng)
	n.sim.queue.Schedule(Event{
		Kind:   MineAttempt,
		At:     n.sim.clock + delay,
		Target: n.id,
		From:   -1,
		Token:  n.ledger.Head(),
	})
}

func (n *Node) snapshot() NodeSnapshot {
	head := n.ledger.HeadBlock()
	return NodeSnapshot{
		Node:       n.id,
		BlockCount: n.ledger.Len(),
		Head:       head.Hash(),
		HeadHeight: head.Number(),
		Weight:     n.weight,
		Blocks:     n.ledger.Hashes(),
	}
}
