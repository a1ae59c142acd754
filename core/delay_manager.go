package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedTask represents a task scheduled for the future
type DelayedTask struct {
	RunAt time.Time
	task  *task
	index int // for heap interface
}

// DelayedTaskHeap implements heap.Interface
type DelayedTaskHeap []*DelayedTask

func (h DelayedTaskHeap) Len() int           { return len(h) }
func (h DelayedTaskHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h DelayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *DelayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *DelayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *DelayedTaskHeap) Peek() *DelayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager is the runtime's time driver. A single goroutine sleeps
// until the earliest deadline and moves expired tasks to the global queue.
type DelayManager struct {
	rt     *Runtime
	pq     DelayedTaskHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newDelayManager(rt *Runtime) *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		rt:     rt,
		pq:     make(DelayedTaskHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

func (dm *DelayManager) AddDelayedTask(tk *task, delay time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := &DelayedTask{
		RunAt: time.Now().Add(delay),
		task:  tk,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate next run time
		nextRun, ok := dm.calculateNextRun()
		if !ok {
			// No tasks, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired tasks in one go
			dm.processExpiredTasks()
		case <-dm.wakeup:
			// New task added, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next task.
// ok is false when there are no tasks; a zero wait means a task is due.
func (dm *DelayManager) calculateNextRun() (wait time.Duration, ok bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}
	return max(time.Until(item.RunAt), 0), true
}

// processExpiredTasks processes all tasks that have expired
// This is more efficient than processing one at a time with continue
func (dm *DelayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now()
	// Collect all expired tasks to avoid holding lock while posting
	var expired []*DelayedTask

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break // No more expired tasks
		}
		// Task has expired
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	// Post expired tasks outside the lock
	for _, item := range expired {
		dm.rt.scheduleDelayed(item.task)
	}
}

// Stop halts the timer goroutine and returns the tasks that never fired.
func (dm *DelayManager) Stop() []*task {
	dm.cancel()

	dm.mu.Lock()
	pending := make([]*task, 0, len(dm.pq))
	for _, item := range dm.pq {
		pending = append(pending, item.task)
	}
	dm.pq = make(DelayedTaskHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()

	return pending
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
