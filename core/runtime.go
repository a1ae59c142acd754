package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Runtime is a running task-execution engine built by a Builder.
// Workers are started by Build and stopped by Shutdown.
type Runtime struct {
	cfg config

	inject  *runQueue
	workers []*worker
	signal  chan struct{}

	delayManager *DelayManager // nil unless the time driver is enabled
	blocking     *blockingPool // nil unless the I/O driver is enabled

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ids idGen

	metricQueued atomic.Int64 // Waiting in inject/local queues or LIFO slots
	metricActive atomic.Int64 // Executing in Worker
	spawned      atomic.Uint64
	rejected     atomic.Uint64
	lifoPolls    atomic.Uint64
	steals       atomic.Uint64

	// Lifecycle
	spawnMu      sync.RWMutex // read side held while a task is queued
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

func newRuntime(cfg config) *Runtime {
	rt := &Runtime{
		cfg:    cfg,
		inject: newRunQueue(),
		signal: make(chan struct{}, cfg.workers*2),
	}
	rt.ctx, rt.cancel = context.WithCancel(context.WithValue(context.Background(), runtimeKey, rt))

	if cfg.enableTime {
		rt.delayManager = newDelayManager(rt)
	}
	if cfg.enableIO {
		rt.blocking = newBlockingPool(rt)
	}

	rt.workers = make([]*worker, cfg.workers)
	for i := range rt.workers {
		rt.workers[i] = &worker{id: i, rt: rt, local: newRunQueue()}
	}
	// Names are drawn in creation order, before any worker goroutine runs.
	for _, w := range rt.workers {
		w.name = rt.nextThreadName()
		rt.wg.Add(1)
		go w.run()
	}

	cfg.logger.Debug("runtime started",
		zap.String("runtime", cfg.name),
		zap.Stringer("flavor", cfg.flavor),
		zap.Int("workers", cfg.workers),
		zap.Bool("lifo_slot", cfg.lifoSlot),
		zap.Bool("io", cfg.enableIO),
		zap.Bool("time", cfg.enableTime))
	return rt
}

func (rt *Runtime) nextThreadName() string {
	if rt.cfg.threadNameFn != nil {
		return rt.cfg.threadNameFn()
	}
	return rt.cfg.threadName
}

// threadContext derives the context a runtime thread runs with.
func (rt *Runtime) threadContext(name string) context.Context {
	return context.WithValue(rt.ctx, threadNameKey, name)
}

// Name returns the runtime name.
func (rt *Runtime) Name() string { return rt.cfg.name }

// Flavor returns the runtime flavor.
func (rt *Runtime) Flavor() Flavor { return rt.cfg.flavor }

// WorkerCount returns the number of workers.
func (rt *Runtime) WorkerCount() int { return len(rt.workers) }

// WorkerNames returns the names assigned to the workers, in creation order.
func (rt *Runtime) WorkerNames() []string {
	names := make([]string, len(rt.workers))
	for i, w := range rt.workers {
		names[i] = w.name
	}
	return names
}

// LIFOSlotEnabled reports whether workers use the LIFO slot.
func (rt *Runtime) LIFOSlotEnabled() bool { return rt.cfg.lifoSlot }

// IsRunning returns whether the runtime accepts new tasks.
func (rt *Runtime) IsRunning() bool { return !rt.shuttingDown.Load() }

// Context returns the runtime root context. It is canceled on shutdown.
func (rt *Runtime) Context() context.Context { return rt.ctx }

// Spawn schedules t. When called from a task running on one of this
// runtime's workers, t is scheduled on that worker; otherwise it goes to the
// global queue.
func (rt *Runtime) Spawn(ctx context.Context, t Task) (*JoinHandle, error) {
	rt.spawnMu.RLock()
	defer rt.spawnMu.RUnlock()

	tk, err := rt.admit(t)
	if err != nil {
		return nil, err
	}
	rt.schedule(ctx, tk)
	return &JoinHandle{t: tk}, nil
}

// SpawnAfter schedules t after delay. It requires the time driver.
func (rt *Runtime) SpawnAfter(ctx context.Context, delay time.Duration, t Task) (*JoinHandle, error) {
	if rt.delayManager == nil {
		return nil, ErrTimeDisabled
	}
	rt.spawnMu.RLock()
	defer rt.spawnMu.RUnlock()

	tk, err := rt.admit(t)
	if err != nil {
		return nil, err
	}
	rt.delayManager.AddDelayedTask(tk, delay)
	return &JoinHandle{t: tk}, nil
}

// SpawnBlocking runs t on the blocking pool. It requires the I/O driver.
func (rt *Runtime) SpawnBlocking(ctx context.Context, t Task) (*JoinHandle, error) {
	if rt.blocking == nil {
		return nil, ErrIODisabled
	}
	rt.spawnMu.RLock()
	defer rt.spawnMu.RUnlock()

	tk, err := rt.admit(t)
	if err != nil {
		return nil, err
	}
	rt.blocking.spawn(tk)
	return &JoinHandle{t: tk}, nil
}

// admit creates the task cell for t. Callers hold spawnMu.RLock.
func (rt *Runtime) admit(t Task) (*task, error) {
	if rt.shuttingDown.Load() {
		rt.reject("shutting down")
		return nil, ErrRuntimeShutdown
	}
	tk := newTask(rt.ids.next(), rt.cfg.name, t)
	rt.spawned.Add(1)
	if hook := rt.cfg.onTaskSpawn; hook != nil {
		hook(tk.meta)
	}
	return tk, nil
}

// scheduleDelayed moves a fired delayed task into the global queue.
func (rt *Runtime) scheduleDelayed(tk *task) {
	rt.spawnMu.RLock()
	defer rt.spawnMu.RUnlock()

	if rt.shuttingDown.Load() {
		tk.finish(ErrRuntimeShutdown)
		return
	}
	rt.schedule(rt.ctx, tk)
}

func (rt *Runtime) reject(reason string) {
	rt.rejected.Add(1)
	rt.cfg.metrics.RecordTaskRejected(rt.cfg.name, reason)
}

func (rt *Runtime) schedule(ctx context.Context, tk *task) {
	rt.metricQueued.Add(1)
	if w := currentWorker(ctx); w != nil && w.rt == rt {
		w.scheduleLocal(tk)
	} else {
		rt.inject.push(tk)
		rt.cfg.metrics.RecordQueueDepth(rt.cfg.name, rt.inject.len())
	}
	rt.notify()
}

func (rt *Runtime) notify() {
	select {
	case rt.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
}

// execute runs tk on the calling goroutine, recovering panics.
func (rt *Runtime) execute(ctx context.Context, tk *task, threadName string) {
	if tk.fn == nil {
		return
	}
	meta := tk.meta
	if hook := rt.cfg.onBeforeTaskPoll; hook != nil {
		hook(meta)
	}

	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = ErrTaskPanicked
				rt.cfg.metrics.RecordTaskPanic(rt.cfg.name, r)
				rt.cfg.panicHandler.HandlePanic(ctx, rt.cfg.name, threadName, r, stackTrace())
			}
		}()
		tk.fn(ctx)
	}()
	rt.cfg.metrics.RecordTaskDuration(rt.cfg.name, time.Since(start))

	if hook := rt.cfg.onAfterTaskPoll; hook != nil {
		hook(meta)
	}
	tk.finish(err)
	if hook := rt.cfg.onTaskTerminate; hook != nil {
		hook(meta)
	}
}

// Shutdown stops accepting tasks, stops the workers and drops queued tasks.
// Tasks already executing are not interrupted; their context is canceled.
// Shutdown waits for workers to exit, so it must not be called from a task
// running on rt. Repeated calls are safe.
func (rt *Runtime) Shutdown() {
	rt.shutdownOnce.Do(func() {
		rt.spawnMu.Lock()
		rt.shuttingDown.Store(true)
		rt.spawnMu.Unlock()

		if rt.delayManager != nil {
			for _, tk := range rt.delayManager.Stop() {
				tk.finish(ErrRuntimeShutdown)
			}
		}
		rt.cancel()
		rt.wg.Wait()
		if rt.blocking != nil {
			rt.blocking.shutdown()
		}
		rt.dropQueued()
		rt.cfg.logger.Debug("runtime stopped", zap.String("runtime", rt.cfg.name))
	})
}

// ShutdownTimeout is Shutdown bounded by timeout. Workers still running
// tasks after the timeout keep running in the background.
func (rt *Runtime) ShutdownTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		rt.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("runtime %q shutdown timeout after %v", rt.cfg.name, timeout)
	}
}

func (rt *Runtime) dropQueued() {
	dropped := rt.inject.drain()
	for _, w := range rt.workers {
		dropped = append(dropped, w.local.drain()...)
		if tk := w.lifo.Swap(nil); tk != nil {
			dropped = append(dropped, tk)
		}
	}
	for _, tk := range dropped {
		rt.metricQueued.Add(-1)
		tk.finish(ErrRuntimeShutdown)
	}
}

// Stats returns a snapshot of the runtime state.
func (rt *Runtime) Stats() RuntimeStats {
	st := RuntimeStats{
		Name:            rt.cfg.name,
		Flavor:          rt.cfg.flavor,
		Workers:         len(rt.workers),
		Running:         rt.IsRunning(),
		Queued:          int(rt.metricQueued.Load()),
		Active:          int(rt.metricActive.Load()),
		Spawned:         rt.spawned.Load(),
		Rejected:        rt.rejected.Load(),
		LIFOPolls:       rt.lifoPolls.Load(),
		Steals:          rt.steals.Load(),
		LIFOSlotEnabled: rt.cfg.lifoSlot,
	}
	if rt.delayManager != nil {
		st.Delayed = rt.delayManager.TaskCount()
	}
	if rt.blocking != nil {
		st.BlockingThreads, st.IdleBlockingThreads, st.BlockingQueued = rt.blocking.counts()
	}
	return st
}

// BlockOn runs fut on the calling goroutine with rt in its context and
// returns its result. Tasks spawned by fut run on rt's workers. A panic in
// fut propagates to the caller.
func BlockOn[T any](rt *Runtime, fut Future[T]) T {
	return fut(rt.ctx)
}
