// Package tracestore persists finished-run traces and snapshots so
// downstream plotting and analysis tools can read them without holding
// the run in memory. The simulation core never reads anything back.
package tracestore

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/jkolyakov/blockchain-simulator/simulation"
)

// Store wraps a LevelDB instance holding any number of named runs.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type runMeta struct {
	Consensus string          `json:"consensus"`
	FinalTime float64         `json:"final_time"`
	Genesis   simulation.Hash `json:"genesis"`
	Events    int             `json:"events"`
	Nodes     int             `json:"nodes"`
}

func traceKey(run string, seq uint64) []byte {
	return []byte(fmt.Sprintf("run:%s:trace:%012d", run, seq))
}

func snapshotKey(run string, id simulation.NodeID) []byte {
	return []byte(fmt.Sprintf("run:%s:snapshot:%012d", run, id))
}

func metaKey(run string) []byte {
	return []byte(fmt.Sprintf("run:%s:meta", run))
}

// SaveRun writes the whole result under the run name. Trace keys are
// zero-padded by sequence so iteration returns records in emission
// order.
func (s *Store) SaveRun(run string, res *simulation.Result) error {
	batch := new(leveldb.Batch)
	for _, ev := range res.Trace {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		batch.Put(traceKey(run, ev.Seq), data)
	}
	for id, snap := range res.Snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		batch.Put(snapshotKey(run, id), data)
	}
	meta, err := json.Marshal(runMeta{
		Consensus: res.Consensus.String(),
		FinalTime: res.FinalTime,
		Genesis:   res.Genesis,
		Events:    len(res.Trace),
		Nodes:     len(res.Snapshots),
	})
	if err != nil {
		return err
	}
	batch.Put(metaKey(run), meta)
	return s.db.Write(batch, nil)
}

// LoadTrace returns the run's trace in emission order.
func (s *Store) LoadTrace(run string) ([]simulation.TraceEvent, error) {
	prefix := []byte(fmt.Sprintf("run:%s:trace:", run))
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var trace []simulation.TraceEvent
	for iter.Next() {
		var ev simulation.TraceEvent
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, err
		}
		trace = append(trace, ev)
	}
	return trace, iter.Error()
}

// LoadSnapshots returns the run's final per-node ledger snapshots.
func (s *Store) LoadSnapshots(run string) (map[simulation.NodeID]simulation.NodeSnapshot, error) {
	prefix := []byte(fmt.Sprintf("run:%s:snapshot:", run))
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	snapshots := make(map[simulation.NodeID]simulation.NodeSnapshot)
	for iter.Next() {
		var snap simulation.NodeSnapshot
		if err := json.Unmarshal(iter.Value(), &snap); err != nil {
			return nil, err
		}
		snapshots[snap.Node] = snap
	}
	return snapshots, iter.Error()
}
