package simulation_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkolyakov/blockchain-simulator/simulation"
)

func nodeIDs(n int) []simulation.NodeID {
	ids := make([]simulation.NodeID, n)
	for i := range ids {
		ids[i] = simulation.NodeID(i)
	}
	return ids
}

func constantLatency(v float64) simulation.TopologyConfig {
	return simulation.TopologyConfig{
		Latency: simulation.Distribution{Kind: simulation.DistConstant, Value: v},
	}
}

func TestFullTopology(t *testing.T) {
	cfg := constantLatency(1)
	cfg.Kind = string(simulation.TopologyFull)
	topo, err := simulation.BuildTopology(nodeIDs(6), cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for _, id := range topo.NodeIDs() {
		assert.Len(t, topo.Neighbors(id), 5)
	}
}

func TestRingTopology(t *testing.T) {
	cfg := constantLatency(1)
	cfg.Kind = string(simulation.TopologyRing)
	topo, err := simulation.BuildTopology(nodeIDs(5), cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for _, id := range topo.NodeIDs() {
		assert.Len(t, topo.Neighbors(id), 2)
	}
	// Non-adjacent nodes share no link.
	_, err = topo.Delay(0, 2)
	assert.Error(t, err)
}

func TestStarTopology(t *testing.T) {
	cfg := constantLatency(1)
	cfg.Kind = string(simulation.TopologyStar)
	topo, err := simulation.BuildTopology(nodeIDs(7), cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Len(t, topo.Neighbors(0), 6)
	for _, id := range topo.NodeIDs()[1:] {
		assert.Len(t, topo.Neighbors(id), 1)
	}
}

func TestRandomTopologyDense(t *testing.T) {
	cfg := simulation.TopologyConfig{
		Kind:     string(simulation.TopologyRandom),
		EdgeProb: 1.0,
		Latency:  simulation.Distribution{Kind: simulation.DistUniform, Min: 0.1, Max: 0.5},
	}
	topo, err := simulation.BuildTopology(nodeIDs(10), cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	for _, id := range topo.NodeIDs() {
		assert.Len(t, topo.Neighbors(id), 9)
	}
}

func TestRandomTopologyDisconnected(t *testing.T) {
	cfg := simulation.TopologyConfig{
		Kind:     string(simulation.TopologyRandom),
		EdgeProb: 0.01,
		Latency:  simulation.Distribution{Kind: simulation.DistConstant, Value: 1},
	}
	_, err := simulation.BuildTopology(nodeIDs(30), cfg, rand.New(rand.NewSource(7)))
	assert.ErrorIs(t, err, simulation.ErrDisconnectedTopology)
}

func TestLatencyFixedPerLink(t *testing.T) {
	cfg := simulation.TopologyConfig{
		Kind:    string(simulation.TopologyFull),
		Latency: simulation.Distribution{Kind: simulation.DistUniform, Min: 0.1, Max: 0.5},
	}
	topo, err := simulation.BuildTopology(nodeIDs(4), cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	d1, err := topo.Delay(0, 1)
	require.NoError(t, err)
	d2, err := topo.Delay(0, 1)
	require.NoError(t, err)
	reverse, err := topo.Delay(1, 0)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Equal(t, d1, reverse)
}

func TestLatencyJitterResamples(t *testing.T) {
	cfg := simulation.TopologyConfig{
		Kind:    string(simulation.TopologyFull),
		Jitter:  true,
		Latency: simulation.Distribution{Kind: simulation.DistUniform, Min: 0.1, Max: 0.5},
	}
	topo, err := simulation.BuildTopology(nodeIDs(3), cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	d1, err := topo.Delay(0, 1)
	require.NoError(t, err)
	d2, err := topo.Delay(0, 1)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}
