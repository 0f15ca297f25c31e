package simulation

import (
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrKnownBlock    = errors.New("block already in ledger")
	ErrMissingParent = errors.New("parent block not in ledger")
)

// BlockStore is the shared content-addressed arena. Every node view
// holds references into it, so a block's content lives once no matter
// how many nodes have seen it. Eviction only loses the interning, not
// any node's copy of the reference.
type BlockStore struct {
	blocks *lru.Cache[Hash, *Block]
}

func NewBlockStore(capacity int) *BlockStore {
	blocks, _ := lru.New[Hash, *Block](capacity)
	return &BlockStore{
		blocks: blocks,
	}
}

// Intern returns the canonical pointer for the block's content, storing
// b if the content is new.
func (s *BlockStore) Intern(b *Block) *Block {
	hash := b.Hash()
	if canonical, ok := s.blocks.Get(hash); ok {
		return canonical
	}
	s.blocks.Add(hash, b)
	return b
}

func (s *BlockStore) Get(hash Hash) (*Block, bool) {
	return s.blocks.Get(hash)
}

func (s *BlockStore) Len() int {
	return s.blocks.Len()
}

// arrival records when a node first saw a block. The sequence is a
// per-ledger first-seen counter used to break consensus ties
// deterministically when two blocks arrive at the same timestamp.
type arrival struct {
	time float64
	seq  uint64
}

// Ledger is one node's view of the block DAG: which blocks it has
// validated, when each arrived, the children index for fork walks, and
// the canonical head pointer. Different nodes hold divergent views of
// the same underlying store.
type Ledger struct {
	store    *BlockStore
	blocks   map[Hash]*Block
	children map[Hash][]Hash
	arrivals map[Hash]arrival
	genesis  Hash
	head     Hash
	nextSeq  uint64
}

func NewLedger(store *BlockStore, genesis *Block) *Ledger {
	genesis = store.Intern(genesis)
	hash := genesis.Hash()
	l := &Ledger{
		store:    store,
		blocks:   map[Hash]*Block{hash: genesis},
		children: make(map[Hash][]Hash),
		arrivals: map[Hash]arrival{hash: {time: 0, seq: 0}},
		genesis:  hash,
		head:     hash,
		nextSeq:  1,
	}
	return l
}

func (l *Ledger) Contains(hash Hash) bool {
	_, ok := l.blocks[hash]
	return ok
}

func (l *Ledger) Get(hash Hash) (*Block, bool) {
	b, ok := l.blocks[hash]
	return b, ok
}

// Insert adds a validated block to this view. The parent must already
// be present: a view never holds a block without its full ancestry.
func (l *Ledger) Insert(b *Block, now float64) error {
	hash := b.Hash()
	if l.Contains(hash) {
		return ErrKnownBlock
	}
	if !l.Contains(b.ParentHash()) {
		return fmt.Errorf("insert %v: %w", hash, ErrMissingParent)
	}
	b = l.store.Intern(b)
	l.blocks[hash] = b
	l.children[b.ParentHash()] = append(l.children[b.ParentHash()], hash)
	l.arrivals[hash] = arrival{time: now, seq: l.nextSeq}
	l.nextSeq++
	return nil
}

func (l *Ledger) Children(hash Hash) []Hash {
	return l.children[hash]
}

func (l *Ledger) Arrival(hash Hash) (float64, bool) {
	a, ok := l.arrivals[hash]
	return a.time, ok
}

func (l *Ledger) arrivalSeq(hash Hash) uint64 {
	return l.arrivals[hash].seq
}

func (l *Ledger) Genesis() Hash {
	return l.genesis
}

func (l *Ledger) Head() Hash {
	return l.head
}

func (l *Ledger) HeadBlock() *Block {
	return l.blocks[l.head]
}

// SetHead commits a head chosen by the consensus engine. The engine
// itself never mutates the view.
func (l *Ledger) SetHead(hash Hash) error {
	if !l.Contains(hash) {
		return fmt.Errorf("set head %v: block not in ledger", hash)
	}
	l.head = hash
	return nil
}

func (l *Ledger) Len() int {
	return len(l.blocks)
}

// Hashes returns every block hash in this view in first-seen order.
func (l *Ledger) Hashes() []Hash {
	out := make([]Hash, 0, len(l.blocks))
	for h := range l.blocks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return l.arrivals[out[i]].seq < l.arrivals[out[j]].seq
	})
	return out
}
