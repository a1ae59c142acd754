package core

import (
	"context"
	"runtime/debug"
	"runtime/pprof"
	"sync/atomic"
)

// worker owns a local run queue and, when enabled, a LIFO slot holding the
// task most recently spawned from this worker. Siblings may steal from the
// local queue but never from the LIFO slot.
type worker struct {
	id    int
	name  string
	rt    *Runtime
	local *runQueue
	lifo  atomic.Pointer[task]

	tick      uint64
	lifoPolls int
}

// scheduleLocal is called from a task running on w.
func (w *worker) scheduleLocal(tk *task) {
	if !w.rt.cfg.lifoSlot {
		w.local.push(tk)
		return
	}
	if prev := w.lifo.Swap(tk); prev != nil {
		w.local.push(prev)
	}
}

// run is the main loop for each worker
func (w *worker) run() {
	rt := w.rt
	defer rt.wg.Done()

	ctx := context.WithValue(rt.threadContext(w.name), workerKey, w)
	pprof.Do(ctx, pprof.Labels("thread", w.name, "runtime", rt.cfg.name), func(ctx context.Context) {
		if hook := rt.cfg.onThreadStart; hook != nil {
			hook(ctx)
		}
		rt.cfg.logger.Debug("worker started", threadFields(rt, w.name, "worker")...)

		w.loop(ctx)

		if hook := rt.cfg.onThreadStop; hook != nil {
			hook(ctx)
		}
		rt.cfg.logger.Debug("worker stopped", threadFields(rt, w.name, "worker")...)
	})
}

func (w *worker) loop(ctx context.Context) {
	rt := w.rt
	for {
		tk, ok := w.next(ctx)
		if !ok {
			// Runtime shutting down
			return
		}
		rt.metricQueued.Add(-1)
		rt.metricActive.Add(1)
		rt.execute(ctx, tk, w.name)
		rt.metricActive.Add(-1)
	}
}

// next pulls the next task, parking when there is nothing to do.
func (w *worker) next(ctx context.Context) (*task, bool) {
	rt := w.rt
	stopCh := ctx.Done()

	for {
		select {
		case <-stopCh:
			return nil, false
		default:
		}

		if tk := w.poll(); tk != nil {
			return tk, true
		}

		if hook := rt.cfg.onThreadPark; hook != nil {
			hook(ctx)
		}
		select {
		case <-rt.signal:
		case <-stopCh:
		}
		if hook := rt.cfg.onThreadUnpark; hook != nil {
			hook(ctx)
		}
	}
}

// poll looks for work in the order: global queue (every
// globalQueueInterval ticks), LIFO slot, local queue, global queue, siblings.
func (w *worker) poll() *task {
	rt := w.rt
	w.tick++

	if w.tick%uint64(rt.cfg.globalQueueInterval) == 0 {
		if tk, ok := rt.inject.pop(); ok {
			return tk
		}
	}

	if w.lifoPolls < maxLIFOPollsPerTick {
		if tk := w.lifo.Swap(nil); tk != nil {
			w.lifoPolls++
			rt.lifoPolls.Add(1)
			return tk
		}
	} else if tk := w.lifo.Swap(nil); tk != nil {
		// Budget spent; let the local queue go first.
		w.local.push(tk)
	}
	w.lifoPolls = 0

	if tk, ok := w.local.pop(); ok {
		return tk
	}
	if tk, ok := rt.inject.pop(); ok {
		return tk
	}
	return w.steal()
}

// steal takes half of a sibling's local queue, runs the oldest task and
// keeps the rest locally.
func (w *worker) steal() *task {
	rt := w.rt
	n := len(rt.workers)
	for i := 1; i < n; i++ {
		victim := rt.workers[(w.id+i)%n]
		batch := victim.local.stealHalf()
		if len(batch) == 0 {
			continue
		}
		rt.steals.Add(1)
		w.local.pushBatch(batch[1:])
		if len(batch) > 1 {
			rt.notify()
		}
		return batch[0]
	}
	return nil
}

func stackTrace() []byte {
	return debug.Stack()
}
