package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a spawned task panics during execution.
// The runtime recovers the panic, reports it here and keeps the worker alive.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task (carries the runtime and thread name)
	// - runtimeName: The name of the runtime where the panic occurred
	// - threadName: The worker or blocking thread that ran the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runtimeName string, threadName string, panicInfo any, stackTrace []byte)
}

// LogPanicHandler logs task panics at error level.
type LogPanicHandler struct {
	Logger *zap.Logger
}

// HandlePanic logs panic information.
func (h *LogPanicHandler) HandlePanic(ctx context.Context, runtimeName string, threadName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("task panicked",
		zap.String("runtime", runtimeName),
		zap.String("thread", threadName),
		zap.Any("panic", panicInfo),
		zap.ByteString("stack", stackTrace))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(runtimeName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(runtimeName string, panicInfo any)

	// RecordQueueDepth records the global queue depth after a spawn.
	RecordQueueDepth(runtimeName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(runtimeName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(runtimeName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(runtimeName string, panicInfo any)            {}
func (m *NilMetrics) RecordQueueDepth(runtimeName string, depth int)               {}
func (m *NilMetrics) RecordTaskRejected(runtimeName string, reason string)         {}
