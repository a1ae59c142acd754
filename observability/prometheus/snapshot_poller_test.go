package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/taskrt/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type runtimeStub struct {
	stats core.RuntimeStats
}

func (s runtimeStub) Stats() core.RuntimeStats { return s.stats }

func TestSnapshotPoller_CollectsRuntimeStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddRuntime("rt-a", runtimeStub{stats: core.RuntimeStats{
		Workers:         8,
		Running:         true,
		Queued:          4,
		Active:          2,
		Delayed:         1,
		BlockingThreads: 3,
		Spawned:         42,
		Steals:          5,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.queued.WithLabelValues("rt-a"))
		active := testutil.ToFloat64(poller.active.WithLabelValues("rt-a"))
		return queued == 4 && active == 2
	})

	if got := testutil.ToFloat64(poller.running.WithLabelValues("rt-a")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.lifoSlot.WithLabelValues("rt-a")); got != 0 {
		t.Fatalf("lifo slot gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(poller.spawned.WithLabelValues("rt-a")); got != 42 {
		t.Fatalf("spawned gauge = %v, want 42", got)
	}
}

func TestSnapshotPoller_LiveRuntime(t *testing.T) {
	rt, err := core.NewMultiThread().WorkerThreads(3).Name("live").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer rt.Shutdown()

	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	poller.AddRuntime(rt.Name(), rt)
	poller.Start(context.Background())
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.workers.WithLabelValues("live")) == 3
	})

	poller.RemoveRuntime("live")
	if n := testutil.CollectAndCount(poller.workers); n != 0 {
		t.Fatalf("workers series after remove = %d, want 0", n)
	}
}

func TestSnapshotPoller_SharedRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
