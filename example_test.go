package taskrt_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/Swind/taskrt"
	"github.com/Swind/taskrt/core"
)

// ExampleRun demonstrates the basic usage with only one import.
func ExampleRun() {
	answer := taskrt.Run(func(ctx context.Context) int {
		h, err := taskrt.Spawn(ctx, func(ctx context.Context) {
			fmt.Println("Task 1")
		})
		if err != nil {
			return -1
		}
		_ = h.Wait(ctx)
		fmt.Println("Task 2")
		return 42
	})
	fmt.Println(answer)

	// Output:
	// Task 1
	// Task 2
	// 42
}

// ExampleRunWithBuilder demonstrates choosing the worker count.
func ExampleRunWithBuilder() {
	b := taskrt.NewMultiThread().WorkerThreads(2)

	workers := taskrt.RunWithBuilder(b, func(ctx context.Context) int {
		return taskrt.CurrentRuntime(ctx).WorkerCount()
	})
	fmt.Println("workers:", workers)

	// Output:
	// workers: 2
}

// ExampleBuild demonstrates handling build errors instead of panicking.
func ExampleBuild() {
	_, err := taskrt.Build(taskrt.NewMultiThread().WorkerThreads(0))

	var buildErr *taskrt.BuildError
	if errors.As(err, &buildErr) {
		fmt.Println(buildErr.Stage)
	}
	fmt.Println(errors.Is(err, core.ErrInvalidWorkerThreads))

	// Output:
	// runtime construction
	// true
}
