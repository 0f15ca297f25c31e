// Package stats derives summary metrics from a finished run's trace
// and snapshots. It never touches engine internals: everything here is
// computable from the Result alone.
package stats

import (
	"math"
	"sort"

	"github.com/jkolyakov/blockchain-simulator/simulation"
)

// LatencySummary describes the distribution of per-arrival block
// propagation delays (arrival time minus creation time).
type LatencySummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

type Summary struct {
	BlocksMined       int            `json:"blocks_mined"`
	Rejections        int            `json:"rejections"`
	Dropped           int            `json:"dropped"`
	OrphansBuffered   int            `json:"orphans_buffered"`
	UnresolvedOrphans int            `json:"unresolved_orphans"`
	ForkCount         int            `json:"fork_count"`
	Propagation       LatencySummary `json:"propagation"`
	// Converged reports whether, at the end of the run, all nodes'
	// heads shared a common ancestor within the tolerance given to
	// Collect. ConvergenceTime is the simulated time of the last
	// transition into that state, -1 when it never happened.
	Converged       bool    `json:"converged"`
	ConvergenceTime float64 `json:"convergence_time"`
}

// Collect computes the summary. tolerance is the block-height slack K
// for convergence: all heads must descend from one block at most K
// heights below each head.
func Collect(res *simulation.Result, tolerance uint64) Summary {
	sum := Summary{ConvergenceTime: -1}

	// Creation times and parents come from the mined records
	// alone; arrival records yield the propagation samples.
	created := map[simulation.Hash]float64{}
	parents := map[simulation.Hash]simulation.Hash{}
	children := map[simulation.Hash]int{}
	var delays []float64

	heads := map[simulation.NodeID]simulation.Hash{}
	for id := range res.Snapshots {
		heads[id] = res.Genesis
	}
	converged := false

	for _, ev := range res.Trace {
		switch ev.Kind {
		case simulation.KindMined:
			sum.BlocksMined++
			created[ev.Block] = ev.Time
			parents[ev.Block] = ev.Parent
			children[ev.Parent]++
		case simulation.KindArrival:
			if t, ok := created[ev.Block]; ok {
				delays = append(delays, ev.Time-t)
			}
		case simulation.KindRejected:
			sum.Rejections++
		case simulation.KindDropped:
			sum.Dropped++
		case simulation.KindOrphanBuffered:
			sum.OrphansBuffered++
		case simulation.KindOrphanUnresolved:
			sum.UnresolvedOrphans++
		}

		switch ev.Kind {
		case simulation.KindMined, simulation.KindArrival, simulation.KindHeadChange:
			heads[ev.Node] = ev.Head
			now := headsConverged(heads, parents, res.Genesis, tolerance)
			if now && !converged {
				sum.ConvergenceTime = ev.Time
			}
			converged = now
		}
	}

	sum.Converged = converged
	if !converged {
		sum.ConvergenceTime = -1
	}
	for _, n := range children {
		if n > 1 {
			sum.ForkCount++
		}
	}
	sum.Propagation = summarize(delays)
	return sum
}

// headsConverged reports whether every head descends from one common
// block within tolerance heights of each head.
func headsConverged(heads map[simulation.NodeID]simulation.Hash, parents map[simulation.Hash]simulation.Hash, genesis simulation.Hash, tolerance uint64) bool {
	counts := map[simulation.Hash]int{}
	for _, head := range heads {
		cur := head
		for steps := uint64(0); ; steps++ {
			counts[cur]++
			if steps >= tolerance || cur == genesis {
				break
			}
			parent, ok := parents[cur]
			if !ok {
				break
			}
			cur = parent
		}
	}
	for _, n := range counts {
		if n == len(heads) {
			return true
		}
	}
	return false
}

func summarize(delays []float64) LatencySummary {
	if len(delays) == 0 {
		return LatencySummary{}
	}
	sorted := append([]float64(nil), delays...)
	sort.Float64s(sorted)
	total := 0.0
	for _, d := range sorted {
		total += d
	}
	return LatencySummary{
		Count: len(sorted),
		Mean:  total / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
