package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Swind/taskrt/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu           sync.Mutex
	durations    map[string]int
	panics       map[string]int
	queueDepths  []int
	rejectReason []string
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{
		durations: make(map[string]int),
		panics:    make(map[string]int),
	}
}

func (m *TestMetrics) RecordTaskDuration(runtimeName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[runtimeName]++
}

func (m *TestMetrics) RecordTaskPanic(runtimeName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[runtimeName]++
}

func (m *TestMetrics) RecordQueueDepth(runtimeName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepths = append(m.queueDepths, depth)
}

func (m *TestMetrics) RecordTaskRejected(runtimeName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectReason = append(m.rejectReason, reason)
}

var _ core.Metrics = (*TestMetrics)(nil)
var _ core.Metrics = (*core.NilMetrics)(nil)
var _ core.PanicHandler = (*core.LogPanicHandler)(nil)

// TestMetrics_WiredIntoRuntime verifies the runtime reports to its Metrics sink
// Given: A runtime built with a recording Metrics implementation
// When: Tasks succeed, one panics and one is spawned after shutdown
// Then: Durations, panics, queue depths and the rejection are all recorded
func TestMetrics_WiredIntoRuntime(t *testing.T) {
	// Arrange
	metrics := NewTestMetrics()
	rt, err := core.NewMultiThread().
		Name("metered").
		WorkerThreads(2).
		Metrics(metrics).
		PanicHandler(&recordingPanicHandler{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ctx := context.Background()

	// Act
	for range 3 {
		h, _ := rt.Spawn(ctx, func(ctx context.Context) {})
		_ = h.Wait(ctx)
	}
	h, _ := rt.Spawn(ctx, func(ctx context.Context) { panic("metered panic") })
	if err := h.Wait(ctx); err != core.ErrTaskPanicked {
		t.Fatalf("Wait = %v, want ErrTaskPanicked", err)
	}
	rt.Shutdown()
	_, _ = rt.Spawn(ctx, func(ctx context.Context) {})

	// Assert
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if got := metrics.durations["metered"]; got != 4 {
		t.Errorf("durations recorded = %d, want 4", got)
	}
	if got := metrics.panics["metered"]; got != 1 {
		t.Errorf("panics recorded = %d, want 1", got)
	}
	if len(metrics.queueDepths) != 4 {
		t.Errorf("queue depth samples = %d, want 4 (one per global spawn)", len(metrics.queueDepths))
	}
	if len(metrics.rejectReason) != 1 || metrics.rejectReason[0] != "shutting down" {
		t.Errorf("rejections = %v, want [shutting down]", metrics.rejectReason)
	}
}

func TestLogPanicHandler_Logs(t *testing.T) {
	obs, logs := observer.New(zapcore.ErrorLevel)
	h := &core.LogPanicHandler{Logger: zap.New(obs)}

	h.HandlePanic(context.Background(), "rt", "worker-1", "boom", []byte("stack"))

	entries := logs.FilterMessage("task panicked").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["runtime"] != "rt" || fields["thread"] != "worker-1" || fields["panic"] != "boom" {
		t.Errorf("fields = %v", fields)
	}
}

func TestLogPanicHandler_NilLogger(t *testing.T) {
	h := &core.LogPanicHandler{}

	// Must not panic without a logger.
	h.HandlePanic(context.Background(), "rt", "worker-1", "boom", nil)
}

func TestRuntime_DefaultPanicHandlerUsesBuilderLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.ErrorLevel)
	rt := newRuntime(t, core.NewMultiThread().WorkerThreads(1).Logger(zap.New(obs)))

	h, err := rt.Spawn(context.Background(), func(ctx context.Context) { panic("logged") })
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	_ = h.Wait(context.Background())

	if got := logs.FilterMessage("task panicked").Len(); got != 1 {
		t.Errorf("panic log entries = %d, want 1", got)
	}
}
