package core

import (
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// runQueue is a mutex-guarded FIFO of tasks. It backs both the global
// inject queue and each worker's local queue.
type runQueue struct {
	mu    sync.Mutex
	tasks []*task
}

func newRunQueue() *runQueue {
	return &runQueue{
		tasks: make([]*task, 0, defaultQueueCap),
	}
}

func (q *runQueue) push(t *task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *runQueue) pushBatch(batch []*task) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, batch...)
}

func (q *runQueue) pop() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return t, true
}

// stealHalf removes the older half (rounded up) of the queue.
func (q *runQueue) stealHalf() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	if n == 0 {
		return nil
	}
	take := (n + 1) / 2

	batch := make([]*task, take)
	copy(batch, q.tasks[:take])
	for i := range take {
		q.tasks[i] = nil
	}
	q.tasks = q.tasks[take:]
	q.maybeCompactLocked()

	return batch
}

func (q *runQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// drain empties the queue and returns what it held.
func (q *runQueue) drain() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = make([]*task, 0, defaultQueueCap)
	return out
}
