package services

import "sync"

// WorkQueue is a FIFO of article IDs with set semantics: an ID is queued at most once.
type WorkQueue struct {
	mu    sync.Mutex
	order []string
	set   map[string]struct{}
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{set: make(map[string]struct{})}
}

// Enqueue appends id unless it is already queued. It reports whether id was added.
func (q *WorkQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.set[id]; ok {
		return false
	}
	q.set[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

// DrainOne removes and returns the oldest ID.
func (q *WorkQueue) DrainOne() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", false
	}
	id := q.order[0]
	q.order[0] = ""
	q.order = q.order[1:]
	delete(q.set, id)
	return id, true
}

// IsEmpty reports whether nothing is queued.
func (q *WorkQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued IDs.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
