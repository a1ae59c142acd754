package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// Future is a top-level unit of work that produces a value.
type Future[T any] func(ctx context.Context) T

// TaskID identifies a spawned task within its runtime.
type TaskID uint64

// TaskMeta is handed to task lifecycle hooks.
type TaskMeta struct {
	ID      TaskID
	Runtime string
}

var (
	ErrRuntimeShutdown = errors.New("runtime is shut down")
	ErrNoRuntime       = errors.New("context carries no runtime")
	ErrTaskPanicked    = errors.New("task panicked")
	ErrTimeDisabled    = errors.New("time driver is disabled; call Builder.EnableTime")
	ErrIODisabled      = errors.New("I/O driver is disabled; call Builder.EnableIO")
)

// =============================================================================
// task: internal scheduling cell
// =============================================================================

type task struct {
	meta TaskMeta
	fn   Task

	once sync.Once
	done chan struct{}
	err  error
}

func newTask(id TaskID, runtimeName string, fn Task) *task {
	return &task{
		meta: TaskMeta{ID: id, Runtime: runtimeName},
		fn:   fn,
		done: make(chan struct{}),
	}
}

func (t *task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		t.fn = nil // release closure references
		close(t.done)
	})
}

// JoinHandle tracks a spawned task.
type JoinHandle struct {
	t *task
}

// ID returns the task id.
func (h *JoinHandle) ID() TaskID {
	return h.t.meta.ID
}

// Done is closed once the task has finished, panicked or been dropped.
func (h *JoinHandle) Done() <-chan struct{} {
	return h.t.done
}

// Wait blocks until the task finishes or ctx is done.
// It returns ErrTaskPanicked if the task panicked and ErrRuntimeShutdown
// if the runtime dropped the task before it ran.
func (h *JoinHandle) Wait(ctx context.Context) error {
	select {
	case <-h.t.done:
		return h.t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Context Helper
// =============================================================================

type runtimeKeyType struct{}
type workerKeyType struct{}
type threadNameKeyType struct{}

var (
	runtimeKey    runtimeKeyType
	workerKey     workerKeyType
	threadNameKey threadNameKeyType
)

// CurrentRuntime returns the runtime driving ctx, or nil.
func CurrentRuntime(ctx context.Context) *Runtime {
	if v := ctx.Value(runtimeKey); v != nil {
		return v.(*Runtime)
	}
	return nil
}

// ThreadName returns the name of the worker or blocking thread running ctx.
// It returns "" outside of runtime threads (e.g. inside BlockOn).
func ThreadName(ctx context.Context) string {
	if v := ctx.Value(threadNameKey); v != nil {
		return v.(string)
	}
	return ""
}

func currentWorker(ctx context.Context) *worker {
	if v := ctx.Value(workerKey); v != nil {
		return v.(*worker)
	}
	return nil
}

// Spawn spawns task on the runtime carried by ctx.
// It returns ErrNoRuntime if ctx carries no runtime.
func Spawn(ctx context.Context, t Task) (*JoinHandle, error) {
	rt := CurrentRuntime(ctx)
	if rt == nil {
		return nil, ErrNoRuntime
	}
	return rt.Spawn(ctx, t)
}

type idGen struct{ n atomic.Uint64 }

func (g *idGen) next() TaskID { return TaskID(g.n.Add(1)) }
