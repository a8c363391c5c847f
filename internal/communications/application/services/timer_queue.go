package services

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
)

type timer struct {
	id    uuid.UUID
	at    time.Time
	seq   uint64
	index int
}

// timerHeap orders timers by deadline, then by arming order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerQueue holds at most one timer per communication id.
type timerQueue struct {
	heap timerHeap
	byID map[uuid.UUID]*timer
	seq  uint64
}

func newTimerQueue() *timerQueue {
	return &timerQueue{byID: make(map[uuid.UUID]*timer)}
}

// arm sets or replaces the deadline for id.
func (q *timerQueue) arm(id uuid.UUID, at time.Time) {
	q.seq++
	if t, ok := q.byID[id]; ok {
		t.at = at
		t.seq = q.seq
		heap.Fix(&q.heap, t.index)
		return
	}
	t := &timer{id: id, at: at, seq: q.seq}
	heap.Push(&q.heap, t)
	q.byID[id] = t
}

// disarm removes the timer for id, reporting whether one existed.
func (q *timerQueue) disarm(id uuid.UUID) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, t.index)
	delete(q.byID, id)
	return true
}

// next returns the earliest deadline.
func (q *timerQueue) next() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].at, true
}

// popDue removes and returns every id whose deadline is at or before now, earliest first.
func (q *timerQueue) popDue(now time.Time) []uuid.UUID {
	var due []uuid.UUID
	for len(q.heap) > 0 && !q.heap[0].at.After(now) {
		t := heap.Pop(&q.heap).(*timer)
		delete(q.byID, t.id)
		due = append(due, t.id)
	}
	return due
}

func (q *timerQueue) len() int { return len(q.heap) }

func (q *timerQueue) armed(id uuid.UUID) bool {
	_, ok := q.byID[id]
	return ok
}
