package taskrt

import "github.com/Swind/taskrt/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskrt package for most use cases.

// Builder describes the desired runtime shape
type Builder = core.Builder

// Runtime is a built task-execution engine
type Runtime = core.Runtime

// Task is the unit of work (Closure)
type Task = core.Task

// Future is a top-level unit of work producing a value
type Future[T any] = core.Future[T]

// JoinHandle tracks a spawned task
type JoinHandle = core.JoinHandle

// RuntimeStats is a runtime observability snapshot
type RuntimeStats = core.RuntimeStats

// NewMultiThread returns a builder for a work-stealing multi-worker runtime.
func NewMultiThread() *Builder {
	return core.NewMultiThread()
}

// NewCurrentThread returns a builder for a single-worker runtime.
func NewCurrentThread() *Builder {
	return core.NewCurrentThread()
}

// BlockOn runs fut on rt from the calling goroutine. See core.BlockOn.
func BlockOn[T any](rt *Runtime, fut Future[T]) T {
	return core.BlockOn(rt, fut)
}

// Convenience accessors re-exported from core
var (
	CurrentRuntime = core.CurrentRuntime
	ThreadName     = core.ThreadName
	Spawn          = core.Spawn
)
