package simulation

// TraceKind labels one entry of the append-only event trace.
type TraceKind string

const (
	// KindMined: a node minted a block atop its head.
	KindMined TraceKind = "mined"
	// KindArrival: a block was validated and inserted into a node's ledger.
	KindArrival TraceKind = "arrival"
	// KindRejected: a block failed consensus validation and was dropped
	// without being forwarded. Steady-state behavior, not an error.
	KindRejected TraceKind = "rejected"
	// KindOrphanBuffered: a block arrived before its parent and is held
	// in the pending pool.
	KindOrphanBuffered TraceKind = "orphan-buffered"
	// KindOrphanUnresolved: a block was still waiting for its ancestor
	// when the run halted. Signals a scheduling bug or partition.
	KindOrphanUnresolved TraceKind = "orphan-unresolved"
	// KindHeadChange: the node's canonical head moved.
	KindHeadChange TraceKind = "head-change"
	// KindDropped: a forwarded block was lost to the configured drop rate.
	KindDropped TraceKind = "dropped"
)

// TraceEvent is one record of the run's output trace. External
// collaborators (stats, plotting) consume these and the final
// snapshots; nothing flows back into the engine.
type TraceEvent struct {
	Seq    uint64    `json:"seq"`
	Time   float64   `json:"time"`
	Node   NodeID    `json:"node"`
	Block  Hash      `json:"block"`
	Parent Hash      `json:"parent"`
	Kind   TraceKind `json:"kind"`
	Head   Hash      `json:"head"`
	Height uint64    `json:"height"`
}

// NodeSnapshot is one node's final ledger view.
type NodeSnapshot struct {
	Node       NodeID  `json:"node"`
	BlockCount int     `json:"block_count"`
	Head       Hash    `json:"head"`
	HeadHeight uint64  `json:"head_height"`
	Weight     float64 `json:"weight"`
	Blocks     []Hash  `json:"blocks"`
}

// Result is the driver's full output contract.
type Result struct {
	Consensus Consensus               `json:"consensus"`
	FinalTime float64                 `json:"final_time"`
	Genesis   Hash                    `json:"genesis"`
	Trace     []TraceEvent            `json:"trace"`
	Snapshots map[NodeID]NodeSnapshot `json:"snapshots"`
}
