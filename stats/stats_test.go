package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkolyakov/blockchain-simulator/simulation"
	"github.com/jkolyakov/blockchain-simulator/stats"
)

// Hand-built two-node trace: node 0 mines A, node 1 mines B off the
// same parent, node 1 extends its branch with C and node 0 switches to
// it on arrival. One fork, heads identical only after the last event.
func TestCollectFromTrace(t *testing.T) {
	genesis := simulation.Hash{0xaa}
	blockA := simulation.Hash{0x01}
	blockB := simulation.Hash{0x02}
	blockC := simulation.Hash{0x03}
	blockD := simulation.Hash{0x04}

	res := &simulation.Result{
		Consensus: simulation.ProofOfWork,
		FinalTime: 3.0,
		Genesis:   genesis,
		Trace: []simulation.TraceEvent{
			{Seq: 0, Time: 0, Node: 0, Block: blockA, Parent: genesis, Kind: simulation.KindMined, Head: blockA, Height: 1},
			{Seq: 1, Time: 0.2, Node: 1, Block: blockB, Parent: genesis, Kind: simulation.KindMined, Head: blockB, Height: 1},
			{Seq: 2, Time: 1.0, Node: 1, Block: blockA, Parent: genesis, Kind: simulation.KindArrival, Head: blockB, Height: 1},
			{Seq: 3, Time: 1.2, Node: 1, Block: blockA, Kind: simulation.KindDropped},
			{Seq: 4, Time: 1.5, Node: 0, Block: blockB, Parent: genesis, Kind: simulation.KindArrival, Head: blockA, Height: 1},
			{Seq: 5, Time: 2.0, Node: 1, Block: blockC, Parent: blockB, Kind: simulation.KindMined, Head: blockC, Height: 2},
			{Seq: 6, Time: 2.5, Node: 0, Block: blockD, Parent: blockB, Kind: simulation.KindRejected},
			{Seq: 7, Time: 2.8, Node: 0, Block: blockC, Parent: blockB, Kind: simulation.KindOrphanBuffered},
			{Seq: 8, Time: 3.0, Node: 0, Block: blockC, Parent: blockB, Kind: simulation.KindArrival, Head: blockC, Height: 2},
		},
		Snapshots: map[simulation.NodeID]simulation.NodeSnapshot{
			0: {Node: 0, BlockCount: 4, Head: blockC, HeadHeight: 2},
			1: {Node: 1, BlockCount: 4, Head: blockC, HeadHeight: 2},
		},
	}

	sum := stats.Collect(res, 0)

	assert.Equal(t, 3, sum.BlocksMined)
	assert.Equal(t, 1, sum.Rejections)
	assert.Equal(t, 1, sum.Dropped)
	assert.Equal(t, 1, sum.OrphansBuffered)
	assert.Equal(t, 0, sum.UnresolvedOrphans)
	assert.Equal(t, 1, sum.ForkCount)

	// Delays: A to node 1 (1.0), B to node 0 (1.3), C to node 0 (1.0).
	assert.Equal(t, 3, sum.Propagation.Count)
	assert.InDelta(t, 1.1, sum.Propagation.Mean, 1e-9)
	assert.InDelta(t, 1.0, sum.Propagation.Min, 1e-9)
	assert.InDelta(t, 1.3, sum.Propagation.Max, 1e-9)
	assert.InDelta(t, 1.0, sum.Propagation.P50, 1e-9)
	assert.InDelta(t, 1.3, sum.Propagation.P95, 1e-9)

	// With zero tolerance the heads only agree once C reaches node 0.
	assert.True(t, sum.Converged)
	assert.Equal(t, 3.0, sum.ConvergenceTime)
}

// One height slack is enough for two heads that share a parent.
func TestConvergenceTolerance(t *testing.T) {
	genesis := simulation.Hash{0xaa}
	blockA := simulation.Hash{0x01}
	blockB := simulation.Hash{0x02}

	res := &simulation.Result{
		Genesis: genesis,
		Trace: []simulation.TraceEvent{
			{Seq: 0, Time: 0, Node: 0, Block: blockA, Parent: genesis, Kind: simulation.KindMined, Head: blockA, Height: 1},
			{Seq: 1, Time: 0.5, Node: 1, Block: blockB, Parent: genesis, Kind: simulation.KindMined, Head: blockB, Height: 1},
		},
		Snapshots: map[simulation.NodeID]simulation.NodeSnapshot{
			0: {Node: 0}, 1: {Node: 1},
		},
	}

	strict := stats.Collect(res, 0)
	assert.False(t, strict.Converged)
	assert.Equal(t, -1.0, strict.ConvergenceTime)

	loose := stats.Collect(res, 1)
	assert.True(t, loose.Converged)
	assert.Equal(t, 0.0, loose.ConvergenceTime)
}

func TestEmptyTrace(t *testing.T) {
	res := &simulation.Result{
		Genesis:   simulation.Hash{0xaa},
		Snapshots: map[simulation.NodeID]simulation.NodeSnapshot{0: {Node: 0}},
	}
	sum := stats.Collect(res, 0)
	assert.Equal(t, 0, sum.BlocksMined)
	assert.Equal(t, 0, sum.Propagation.Count)
	assert.False(t, sum.Converged)
	assert.Equal(t, -1.0, sum.ConvergenceTime)
}

// End-to-end sanity: stats over a real ring run all the way to deep
// agreement.
func TestCollectFromRun(t *testing.T) {
	cfg := simulation.DefaultConfig()
	cfg.NodeCount = 8
	cfg.Consensus = "ghost"
	cfg.Topology.Kind = string(simulation.TopologyRing)
	cfg.Topology.Latency = simulation.Distribution{Kind: simulation.DistUniform, Min: 0.1, Max: 0.5}
	cfg.StartJitter = 0
	cfg.Horizon = simulation.HorizonConfig{MaxBlocks: 30}
	cfg.Seed = 9

	sim, err := simulation.NewSimulation(cfg, nil)
	require.NoError(t, err)
	res, err := sim.Run()
	require.NoError(t, err)

	sum := stats.Collect(res, 3)
	assert.Equal(t, 30, sum.BlocksMined)
	assert.Equal(t, 0, sum.UnresolvedOrphans)
	assert.Greater(t, sum.Propagation.Count, 0)
	assert.GreaterOrEqual(t, sum.Propagation.Min, 0.1)
	assert.True(t, sum.Converged)
	assert.GreaterOrEqual(t, sum.ConvergenceTime, 0.0)
}
