package core_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/taskrt/core"
)

func TestSpawnBlocking_IODisabled(t *testing.T) {
	rt := newRuntime(t, core.NewMultiThread().WorkerThreads(1))

	if _, err := rt.SpawnBlocking(context.Background(), func(ctx context.Context) {}); err != core.ErrIODisabled {
		t.Fatalf("SpawnBlocking = %v, want ErrIODisabled", err)
	}
}

// TestSpawnBlocking_DistinctThreadNames verifies concurrent blocking threads are named once each
// Given: A runtime whose thread names come from a counter
// When: 32 blocking tasks run at the same time
// Then: Each ran on its own thread and no name repeats
func TestSpawnBlocking_DistinctThreadNames(t *testing.T) {
	// Arrange
	var n atomic.Uint64
	rt := newRuntime(t, core.NewMultiThread().
		WorkerThreads(2).
		EnableIO().
		ThreadNameFn(func() string { return fmt.Sprintf("thread-%d", n.Add(1)) }))

	const numTasks = 32
	var (
		mu    sync.Mutex
		names = make(map[string]int)
		ready sync.WaitGroup
	)
	ready.Add(numTasks)
	release := make(chan struct{})

	// Act
	handles := make([]*core.JoinHandle, 0, numTasks)
	for range numTasks {
		h, err := rt.SpawnBlocking(context.Background(), func(ctx context.Context) {
			mu.Lock()
			names[core.ThreadName(ctx)]++
			mu.Unlock()
			ready.Done()
			<-release
		})
		if err != nil {
			t.Fatalf("SpawnBlocking failed: %v", err)
		}
		handles = append(handles, h)
	}
	waitTimeout(t, &ready, 2*time.Second)
	close(release)
	for _, h := range handles {
		if err := h.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	// Assert
	if len(names) != numTasks {
		t.Fatalf("distinct thread names = %d, want %d", len(names), numTasks)
	}
	for name, count := range names {
		if count != 1 {
			t.Errorf("thread %q ran %d tasks, want 1", name, count)
		}
	}
	if got := rt.Stats().BlockingThreads; got != numTasks {
		t.Errorf("BlockingThreads = %d, want %d", got, numTasks)
	}
}

func TestSpawnBlocking_ReusesIdleThread(t *testing.T) {
	rt := newRuntime(t, core.NewMultiThread().WorkerThreads(1).EnableIO())
	ctx := context.Background()

	for range 5 {
		h, err := rt.SpawnBlocking(ctx, func(ctx context.Context) {})
		if err != nil {
			t.Fatalf("SpawnBlocking failed: %v", err)
		}
		if err := h.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		eventually(t, time.Second, func() bool { return rt.Stats().IdleBlockingThreads == 1 })
	}

	if got := rt.Stats().BlockingThreads; got != 1 {
		t.Errorf("BlockingThreads = %d, want 1 after sequential spawns", got)
	}
}

func TestSpawnBlocking_MaxThreadsQueues(t *testing.T) {
	rt := newRuntime(t, core.NewMultiThread().WorkerThreads(1).EnableIO().MaxBlockingThreads(2))
	release := make(chan struct{})
	var running atomic.Int32

	handles := make([]*core.JoinHandle, 0, 5)
	for range 5 {
		h, err := rt.SpawnBlocking(context.Background(), func(ctx context.Context) {
			running.Add(1)
			<-release
		})
		if err != nil {
			t.Fatalf("SpawnBlocking failed: %v", err)
		}
		handles = append(handles, h)
	}

	eventually(t, time.Second, func() bool { return running.Load() == 2 })
	st := rt.Stats()
	if st.BlockingThreads != 2 || st.BlockingQueued != 3 {
		t.Errorf("threads/queued = %d/%d, want 2/3", st.BlockingThreads, st.BlockingQueued)
	}

	close(release)
	for _, h := range handles {
		if err := h.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
}

func TestSpawnBlocking_KeepAliveExpires(t *testing.T) {
	var stops atomic.Int32
	rt := newRuntime(t, core.NewMultiThread().
		WorkerThreads(1).
		EnableIO().
		ThreadKeepAlive(20*time.Millisecond).
		OnThreadStop(func(ctx context.Context) { stops.Add(1) }))

	h, err := rt.SpawnBlocking(context.Background(), func(ctx context.Context) {})
	if err != nil {
		t.Fatalf("SpawnBlocking failed: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	eventually(t, time.Second, func() bool { return rt.Stats().BlockingThreads == 0 })
	if got := stops.Load(); got != 1 {
		t.Errorf("thread stops = %d, want 1 (the idle blocking thread)", got)
	}
}

func TestSpawnBlocking_ShutdownDropsQueued(t *testing.T) {
	rt, err := core.NewMultiThread().WorkerThreads(1).EnableIO().MaxBlockingThreads(1).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	running := make(chan struct{})
	first, err := rt.SpawnBlocking(context.Background(), func(ctx context.Context) {
		close(running)
		<-ctx.Done()
	})
	if err != nil {
		t.Fatalf("SpawnBlocking failed: %v", err)
	}
	<-running
	queued, err := rt.SpawnBlocking(context.Background(), func(ctx context.Context) {
		t.Error("queued blocking task ran after shutdown")
	})
	if err != nil {
		t.Fatalf("SpawnBlocking failed: %v", err)
	}

	rt.Shutdown()

	if err := first.Wait(context.Background()); err != nil {
		t.Errorf("running task Wait = %v, want nil", err)
	}
	if err := queued.Wait(context.Background()); err != core.ErrRuntimeShutdown {
		t.Errorf("queued task Wait = %v, want ErrRuntimeShutdown", err)
	}
	if got := rt.Stats().BlockingThreads; got != 0 {
		t.Errorf("BlockingThreads after shutdown = %d, want 0", got)
	}
}
