package simulation

import (
	"fmt"
)

type Consensus uint8

const (
	ProofOfWork Consensus = iota
	ProofOfStake
	Ghost
)

func ParseConsensus(s string) (Consensus, error) {
	switch s {
	case "pow":
		return ProofOfWork, nil
	case "pos":
		return ProofOfStake, nil
	case "ghost":
		return Ghost, nil
	default:
		return 0, fmt.Errorf("unknown consensus %q", s)
	}
}

func (c Consensus) String() string {
	switch c {
	case ProofOfWork:
		return "pow"
	case ProofOfStake:
		return "pos"
	case Ghost:
		return "ghost"
	default:
		return "unknown"
	}
}

// Engine is the fixed capability set every fork-choice variant
// implements. SelectHead never mutates the view; the node agent
// commits the returned head.
type Engine interface {
	Validate(b *Block, view *Ledger) bool
	SelectHead(view *Ledger) Hash
	WeightOf(b *Block) float64
}

// NewEngine returns the engine for the given protocol. The set of
// supported protocols is closed.
func NewEngine(kind Consensus) Engine {
	switch kind {
	case ProofOfWork:
		return longestChain{}
	case ProofOfStake:
		return proofOfStake{}
	case Ghost:
		return ghostEngine{}
	default:
		panic("invalid consensus type")
	}
}

// longestChain is PoW-style fork choice: deepest block wins, ties go
// to whichever block this node saw first.
type longestChain struct{}

func (longestChain) Validate(b *Block, view *Ledger) bool {
	if !view.Contains(b.ParentHash()) {
		return false
	}
	// The nonce is the mining trial recorded at creation; a zero nonce
	// means no successful trial backs the block.
	return b.Nonce() != (BlockNonce{}) && b.Weight() > 0
}

func (longestChain) SelectHead(view *Ledger) Hash {
	best := view.Genesis()
	bestBlock, _ := view.Get(best)
	for hash, b := range view.blocks {
		if b.Number() > bestBlock.Number() ||
			(b.Number() == bestBlock.Number() && view.arrivalSeq(hash) < view.arrivalSeq(best)) {
			best, bestBlock = hash, b
		}
	}
	return best
}

func (longestChain) WeightOf(b *Block) float64 {
	return b.Weight()
}

// proofOfStake keeps the longest-chain head rule; heights are
// stake-weighted eligibility slots rather than mining trials, so
// validity checks the creator's stake and slot ordering instead of a
// proof nonce.
type proofOfStake struct{}

func (proofOfStake) Validate(b *Block, view *Ledger) bool {
	parent, ok := view.Get(b.ParentHash())
	if !ok {
		return false
	}
	return b.Weight() > 0 && b.Time() >= parent.Time()
}

func (proofOfStake) SelectHead(view *Ledger) Hash {
	return longestChain{}.SelectHead(view)
}

func (proofOfStake) WeightOf(b *Block) float64 {
	return b.Weight()
}

// ghostEngine walks from genesis, at every fork descending into the
// child whose subtree carries the greater cumulative weight. The sum
// covers all descendants plus the child itself, not just the heaviest
// chain, so GHOST can pick a shorter but better-supported branch.
type ghostEngine struct{}

func (ghostEngine) Validate(b *Block, view *Ledger) bool {
	return longestChain{}.Validate(b, view)
}

func (g ghostEngine) SelectHead(view *Ledger) Hash {
	weights := make(map[Hash]float64, view.Len())
	g.subtreeWeight(view, view.Genesis(), weights)

	cur := view.Genesis()
	for {
		children := view.Children(cur)
		if len(children) == 0 {
			return cur
		}
		best := children[0]
		for _, c := range children[1:] {
			if weights[c] > weights[best] ||
				(weights[c] == weights[best] && view.arrivalSeq(c) < view.arrivalSeq(best)) {
				best = c
			}
		}
		cur = best
	}
}

func (g ghostEngine) subtreeWeight(view *Ledger, hash Hash, memo map[Hash]float64) float64 {
	if w, ok := memo[hash]; ok {
		return w
	}
	b, _ := view.Get(hash)
	w := g.WeightOf(b)
	for _, c := range view.Children(hash) {
		w += g.subtreeWeight(view, c, memo)
	}
	memo[hash] = w
	return w
}

func (ghostEngine) WeightOf(b *Block) float64 {
	return b.Weight()
}
