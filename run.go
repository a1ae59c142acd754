package taskrt

import (
	"github.com/Swind/taskrt/core"
	"go.uber.org/zap"
)

// Run builds a multi-thread runtime with default settings, runs main on it
// and returns main's result. The runtime is shut down before Run returns.
//
// Use RunWithBuilder for additional runtime configuration or for the
// current-thread flavor.
//
// Run panics if the runtime cannot be built; see RunWithBuilder.
func Run[T any](main Future[T]) T {
	return RunWithBuilder(core.NewMultiThread(), main)
}

// RunWithBuilder is Run with a caller-prepared builder, e.g. to set the
// worker count:
//
//	b := core.NewMultiThread().WorkerThreads(4)
//	taskrt.RunWithBuilder(b, func(ctx context.Context) error {
//		...
//	})
//
// The settings listed on Build are overwritten.
//
// A process without a runtime cannot do anything useful, so RunWithBuilder
// panics instead of returning a build error: on illumos if the tracing probes
// could not be registered, and everywhere if the runtime could not be
// constructed. Use Build to handle these errors.
func RunWithBuilder[T any](b *core.Builder, main Future[T]) T {
	rt, err := Build(b)
	if err != nil {
		Logger().Error("failed to initialize runtime", zap.Error(err))
		panic("taskrt: failed to initialize runtime: " + err.Error())
	}
	defer rt.Shutdown()

	return core.BlockOn(rt, main)
}
