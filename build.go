package taskrt

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Swind/taskrt/core"
	"go.uber.org/zap"
)

// ThreadNamePrefix prefixes the name of every runtime thread built by Build.
const ThreadNamePrefix = "taskrt-runtime-worker"

// threadID numbers runtime threads across every runtime in the process.
// It is never reset.
var threadID atomic.Uint64

func nextThreadName() string {
	n := threadID.Add(1) - 1
	return fmt.Sprintf("%s-%d", ThreadNamePrefix, n)
}

// Stage identifies which step of Build failed.
type Stage string

const (
	StageProbes  Stage = "probe registration"
	StageRuntime Stage = "runtime construction"
)

// BuildError is returned by Build.
type BuildError struct {
	Stage Stage
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Build applies the standard runtime policy to b and builds the runtime.
//
// The following settings on b are overwritten, whatever the caller set:
//
//   - the LIFO slot is disabled
//   - the I/O and time drivers are enabled
//   - the thread name function, which names threads
//     "taskrt-runtime-worker-<n>" from a process-wide counter
//   - the on-thread-start and on-thread-stop hooks
//
// On illumos the tracing probes additionally own the task spawn, poll and
// terminate hooks and the thread park and unpark hooks. Code that needs any
// of these hooks should use core.Builder directly.
//
// b is mutated in place and should not be reused.
func Build(b *core.Builder) (*core.Runtime, error) {
	if err := registerPlatformHooks(b); err != nil {
		return nil, &BuildError{Stage: StageProbes, Err: err}
	}

	logger := Logger()
	if !b.HasLogger() {
		b.Logger(logger)
	}

	rt, err := b.
		EnableAll().
		// A task woken from a worker goes to that worker's LIFO slot and runs
		// next, but the slot is not stealable. If the waking task then stays
		// CPU-bound, the woken task waits behind it while other workers idle.
		// Keep the slot off until it participates in work stealing.
		DisableLIFOSlot().
		ThreadNameFn(nextThreadName).
		OnThreadStart(func(ctx context.Context) {
			logger.Debug("runtime thread started", zap.String("thread", core.ThreadName(ctx)))
		}).
		OnThreadStop(func(ctx context.Context) {
			logger.Debug("runtime thread stopped", zap.String("thread", core.ThreadName(ctx)))
		}).
		Build()
	if err != nil {
		return nil, &BuildError{Stage: StageRuntime, Err: err}
	}
	return rt, nil
}
