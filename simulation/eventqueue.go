package simulation

import (
	"container/heap"
	"errors"
)

// ErrEmptyQueue indicates a dispatch loop that did not check the
// terminal condition before popping.
var ErrEmptyQueue = errors.New("event queue is empty")

type EventKind uint8

const (
	MineAttempt EventKind = iota
	BlockArrival
	ForkCheck
)

func (k EventKind) String() string {
	switch k {
	case MineAttempt:
		return "mine-attempt"
	case BlockArrival:
		return "block-arrival"
	case ForkCheck:
		return "fork-check"
	default:
		return "unknown"
	}
}

// Event is consumed exactly once by the queue. Stale events are
// idempotent no-ops at dispatch, so there is no cancellation primitive.
type Event struct {
	Kind   EventKind
	At     float64
	Target NodeID
	Block  *Block // BlockArrival payload
	From   NodeID // sending neighbor, -1 when locally generated
	Token  Hash   // MineAttempt: the head the attempt was scheduled on
}

type queuedEvent struct {
	ev  Event
	seq uint64
}

type eventHeap []queuedEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.At != h[j].ev.At {
		return h[i].ev.At < h[j].ev.At
	}
	// Insertion order breaks timestamp ties so runs with the same seed
	// dispatch identically.
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(queuedEvent))
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// EventQueue orders pending events by (timestamp, insertion sequence).
type EventQueue struct {
	items   eventHeap
	nextSeq uint64
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{items: make(eventHeap, 0)}
	heap.Init(&q.items)
	return q
}

func (q *EventQueue) Schedule(ev Event) {
	heap.Push(&q.items, queuedEvent{ev: ev, seq: q.nextSeq})
	q.nextSeq++
}

func (q *EventQueue) PopNext() (Event, error) {
	if len(q.items) == 0 {
		return Event{}, ErrEmptyQueue
	}
	item := heap.Pop(&q.items).(queuedEvent)
	return item.ev, nil
}

func (q *EventQueue) Empty() bool {
	return len(q.items) == 0
}

func (q *EventQueue) Len() int {
	return len(q.items)
}
