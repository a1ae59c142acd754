// Package taskrt builds and starts the task-execution runtime the same way in
// every program.
//
// Programs hand their main function to Run instead of assembling a
// core.Builder themselves. Build applies a fixed policy to every runtime:
// the I/O and time drivers are enabled, the worker LIFO slot is disabled,
// and runtime threads are named "taskrt-runtime-worker-<n>" from a
// process-wide counter. On illumos, tracing probes are registered as well.
//
// # Quick Start
//
//	func main() {
//		err := taskrt.Run(func(ctx context.Context) error {
//			h, err := taskrt.Spawn(ctx, func(ctx context.Context) {
//				// runs on a runtime worker
//			})
//			if err != nil {
//				return err
//			}
//			return h.Wait(ctx)
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//	}
//
// # Entry Points
//
// Run: default multi-thread runtime, runs one future to completion.
//
// RunWithBuilder: same, with a caller-prepared builder (worker count,
// current-thread flavor, runtime name, metrics).
//
// Build: returns the runtime, or a *BuildError naming the failed stage.
//
// Run and RunWithBuilder panic when the runtime cannot be built. Build
// returns the error instead.
//
// # Overwritten Settings
//
// Build overwrites the LIFO slot, the I/O and time drivers, the thread name
// function and the on-thread-start and on-thread-stop hooks of the builder it
// is given. Programs that need to set these should drive core.Builder
// directly.
package taskrt
