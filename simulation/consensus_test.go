package simulation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkolyakov/blockchain-simulator/simulation"
)

func TestParseConsensus(t *testing.T) {
	for _, s := range []string{"pow", "pos", "ghost"} {
		c, err := simulation.ParseConsensus(s)
		require.NoError(t, err)
		assert.Equal(t, s, c.String())
	}
	_, err := simulation.ParseConsensus("poa")
	assert.Error(t, err)
}

func mustInsert(t *testing.T, ledger *simulation.Ledger, b *simulation.Block, at float64) {
	t.Helper()
	require.NoError(t, ledger.Insert(b, at))
}

// Builds the tree where GHOST and longest-chain disagree:
//
//	genesis ── A ── A1
//	       └── B ── B1
//	              └── B2
//
// A's chain is as deep as B's, but B's subtree carries three blocks of
// weight against A's two, so GHOST must land on B's side while
// longest-chain sticks with the first-seen deepest tip A1.
func buildForkedLedger(t *testing.T) (*simulation.Ledger, map[string]*simulation.Block) {
	t.Helper()
	store := simulation.NewBlockStore(100)
	genesis := simulation.GenesisBlock()
	ledger := simulation.NewLedger(store, genesis)

	a := simulation.NewBlock(genesis, 0, 1, 1, simulation.EncodeNonce(1), nil)
	a1 := simulation.NewBlock(a, 0, 2, 1, simulation.EncodeNonce(2), nil)
	b := simulation.NewBlock(genesis, 1, 1, 1, simulation.EncodeNonce(3), nil)
	b1 := simulation.NewBlock(b, 1, 2, 1, simulation.EncodeNonce(4), nil)
	b2 := simulation.NewBlock(b, 2, 2, 1, simulation.EncodeNonce(5), nil)

	mustInsert(t, ledger, a, 1)
	mustInsert(t, ledger, a1, 2)
	mustInsert(t, ledger, b, 3)
	mustInsert(t, ledger, b1, 4)
	mustInsert(t, ledger, b2, 5)

	return ledger, map[string]*simulation.Block{"a": a, "a1": a1, "b": b, "b1": b1, "b2": b2}
}

func TestLongestChainPicksDeepestFirstSeen(t *testing.T) {
	ledger, blocks := buildForkedLedger(t)
	engine := simulation.NewEngine(simulation.ProofOfWork)

	// A1, B1, B2 all sit at height 2; A1 arrived first.
	assert.Equal(t, blocks["a1"].Hash(), engine.SelectHead(ledger))
}

func TestGhostPicksHeavierSubtree(t *testing.T) {
	ledger, blocks := buildForkedLedger(t)
	engine := simulation.NewEngine(simulation.Ghost)

	// Subtree weights at the genesis fork: A side 2, B side 3. GHOST
	// descends into B, then takes the first-seen of the B1/B2 tie.
	head := engine.SelectHead(ledger)
	assert.Equal(t, blocks["b1"].Hash(), head)
	assert.NotEqual(t, simulation.NewEngine(simulation.ProofOfWork).SelectHead(ledger), head)
}

func TestGhostUsesCumulativeNotImmediateWeight(t *testing.T) {
	store := simulation.NewBlockStore(100)
	genesis := simulation.GenesisBlock()
	ledger := simulation.NewLedger(store, genesis)

	// A alone outweighs B, but B's descendants tip the subtree total.
	a := simulation.NewBlock(genesis, 0, 1, 3, simulation.EncodeNonce(1), nil)
	b := simulation.NewBlock(genesis, 1, 1, 1, simulation.EncodeNonce(2), nil)
	b1 := simulation.NewBlock(b, 1, 2, 2, simulation.EncodeNonce(3), nil)
	b2 := simulation.NewBlock(b1, 1, 3, 2, simulation.EncodeNonce(4), nil)

	mustInsert(t, ledger, a, 1)
	mustInsert(t, ledger, b, 2)
	mustInsert(t, ledger, b1, 3)
	mustInsert(t, ledger, b2, 4)

	engine := simulation.NewEngine(simulation.Ghost)
	assert.Equal(t, b2.Hash(), engine.SelectHead(ledger))
}

func TestLongestChainTieBreaksByFirstSeen(t *testing.T) {
	store := simulation.NewBlockStore(100)
	genesis := simulation.GenesisBlock()
	ledger := simulation.NewLedger(store, genesis)

	x := simulation.NewBlock(genesis, 0, 1, 1, simulation.EncodeNonce(1), nil)
	y := simulation.NewBlock(genesis, 1, 1, 1, simulation.EncodeNonce(2), nil)
	mustInsert(t, ledger, x, 1)
	mustInsert(t, ledger, y, 1) // same timestamp, seen second

	engine := simulation.NewEngine(simulation.ProofOfWork)
	assert.Equal(t, x.Hash(), engine.SelectHead(ledger))
}

func TestPoWValidate(t *testing.T) {
	store := simulation.NewBlockStore(100)
	genesis := simulation.GenesisBlock()
	ledger := simulation.NewLedger(store, genesis)
	engine := simulation.NewEngine(simulation.ProofOfWork)

	good := simulation.NewBlock(genesis, 0, 1, 1, simulation.EncodeNonce(9), nil)
	assert.True(t, engine.Validate(good, ledger))

	// No proof token recorded at creation.
	noTrial := simulation.NewBlock(genesis, 0, 1, 1, simulation.BlockNonce{}, nil)
	assert.False(t, engine.Validate(noTrial, ledger))

	// Parent unknown to this view.
	orphan := simulation.NewBlock(good, 0, 2, 1, simulation.EncodeNonce(10), nil)
	assert.False(t, engine.Validate(orphan, ledger))
}

func TestPoSValidate(t *testing.T) {
	store := simulation.NewBlockStore(100)
	genesis := simulation.GenesisBlock()
	ledger := simulation.NewLedger(store, genesis)
	engine := simulation.NewEngine(simulation.ProofOfStake)

	good := simulation.NewBlock(genesis, 0, 1, 2, simulation.EncodeNonce(1), nil)
	assert.True(t, engine.Validate(good, ledger))

	// Zero stake cannot win the slot lottery.
	noStake := simulation.NewBlock(genesis, 0, 1, 0, simulation.EncodeNonce(1), nil)
	assert.False(t, engine.Validate(noStake, ledger))

	mustInsert(t, ledger, good, 1)
	// Slot time cannot precede the parent's.
	backdated := simulation.NewBlock(good, 0, 0.5, 2, simulation.EncodeNonce(2), nil)
	assert.False(t, engine.Validate(backdated, ledger))
}
