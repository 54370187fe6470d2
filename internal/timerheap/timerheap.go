// Package timerheap implements a min-heap of pending timers ordered by
// deadline, with O(log n) arbitrary removal and rescheduling via a
// back-pointer stored on each Timer.
package timerheap

import "container/heap"

// Timer is one entry in a Heap. Owner is opaque to the heap; callers use
// it to find their own timer again after a pop, or to remove a specific
// timer belonging to a coroutine that was cancelled before it fired.
type Timer struct {
	Deadline int64 // nanoseconds; the heap only compares values
	Owner    any

	pos int
	seq int64 // insertion order, breaks Deadline ties
}

// entries implements heap.Interface over a slice of *Timer, ordered by
// Deadline (ties broken by insertion order via seq), keeping each
// Timer's pos field in sync with its index.
type entries []*Timer

func (h entries) Len() int { return len(h) }

func (h entries) Less(i, j int) bool {
	if h[i].Deadline != h[j].Deadline {
		return h[i].Deadline < h[j].Deadline
	}
	return h[i].seq < h[j].seq
}

func (h entries) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *entries) Push(x any) {
	t := x.(*Timer)
	if t.pos != -1 {
		panic("timerheap: timer already in a heap")
	}
	t.pos = len(*h)
	*h = append(*h, t)
}

func (h *entries) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	x.pos = -1
	return x
}

// Heap is a min-heap of *Timer ordered by Deadline. It is not safe for
// concurrent use; callers using it from a Runtime rely on the single-
// coroutine-running-at-a-time invariant instead of locking it.
type Heap struct {
	entries entries
	nextSeq int64
}

func New() *Heap {
	return &Heap{}
}

// Add inserts t into the heap, stamping it with the next insertion
// sequence number so that Less can break Deadline ties in insertion
// order. t must not already be in a heap: a new Timer (pos 0, its zero
// value) and a popped or removed one (pos -1) are both accepted.
func (h *Heap) Add(t *Timer) {
	if t.pos == 0 {
		t.pos = -1
	}
	t.seq = h.nextSeq
	h.nextSeq++
	heap.Push(&h.entries, t)
}

// Adjust changes t's deadline and repositions it. t must currently be in
// the heap.
func (h *Heap) Adjust(t *Timer, deadline int64) {
	if t.pos < 0 || t.pos >= len(h.entries) || h.entries[t.pos] != t {
		panic("timerheap: timer not in this heap")
	}
	t.Deadline = deadline
	heap.Fix(&h.entries, t.pos)
}

// Remove takes t out of the heap before it fires. t must currently be in
// the heap.
func (h *Heap) Remove(t *Timer) {
	if t.pos < 0 || t.pos >= len(h.entries) || h.entries[t.pos] != t {
		panic("timerheap: timer not in this heap")
	}
	heap.Remove(&h.entries, t.pos)
}

func (h *Heap) Len() int { return len(h.entries) }

// Pop removes and returns the timer with the earliest deadline.
func (h *Heap) Pop() *Timer {
	return heap.Pop(&h.entries).(*Timer)
}

// Peek returns the timer with the earliest deadline without removing it.
// Len() must be > 0.
func (h *Heap) Peek() *Timer {
	return h.entries[0]
}
