package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Flavor selects the runtime's threading mode.
type Flavor int

const (
	// FlavorMultiThread runs tasks on a pool of work-stealing workers.
	FlavorMultiThread Flavor = iota
	// FlavorCurrentThread runs spawned tasks on a single worker.
	FlavorCurrentThread
)

func (f Flavor) String() string {
	switch f {
	case FlavorMultiThread:
		return "multi_thread"
	case FlavorCurrentThread:
		return "current_thread"
	default:
		return fmt.Sprintf("Flavor(%d)", int(f))
	}
}

const (
	MaxWorkerThreads           = 32768
	defaultMaxBlockingThreads  = 512
	defaultThreadKeepAlive     = 10 * time.Second
	defaultGlobalQueueInterval = 31
	maxGlobalQueueInterval     = math.MaxInt32
	defaultThreadName          = "taskrt-worker"
	defaultRuntimeName         = "runtime"

	// maxLIFOPollsPerTick bounds consecutive LIFO slot polls so the local
	// queue is not starved by tasks that keep waking each other.
	maxLIFOPollsPerTick = 3
)

var (
	ErrInvalidWorkerThreads       = errors.New("worker threads must be between 1 and 32768")
	ErrInvalidMaxBlockingThreads  = errors.New("max blocking threads must be at least 1")
	ErrInvalidGlobalQueueInterval = errors.New("global queue interval must be between 1 and 2147483647")
	ErrUnknownFlavor              = errors.New("unknown runtime flavor")
)

// ThreadHook is called on runtime threads (workers and blocking threads).
// ctx carries the runtime and the thread name.
type ThreadHook func(ctx context.Context)

// TaskHook is called around the lifecycle of a spawned task.
type TaskHook func(meta TaskMeta)

// Builder describes the desired runtime shape. Methods mutate the builder in
// place and return it for chaining. A builder should not be reused after Build.
type Builder struct {
	flavor Flavor
	name   string

	workerThreads       int
	maxBlockingThreads  int
	threadKeepAlive     time.Duration
	globalQueueInterval int

	enableIO        bool
	enableTime      bool
	disableLIFOSlot bool

	threadName   string
	threadNameFn func() string

	onThreadStart    ThreadHook
	onThreadStop     ThreadHook
	onThreadPark     ThreadHook
	onThreadUnpark   ThreadHook
	onTaskSpawn      TaskHook
	onBeforeTaskPoll TaskHook
	onAfterTaskPoll  TaskHook
	onTaskTerminate  TaskHook

	logger       *zap.Logger
	metrics      Metrics
	panicHandler PanicHandler
}

// NewMultiThread returns a builder for a work-stealing multi-worker runtime.
func NewMultiThread() *Builder {
	return &Builder{flavor: FlavorMultiThread}
}

// NewCurrentThread returns a builder for a single-worker runtime.
func NewCurrentThread() *Builder {
	return &Builder{flavor: FlavorCurrentThread}
}

// NewBuilder returns a builder for the given flavor.
func NewBuilder(flavor Flavor) *Builder {
	return &Builder{flavor: flavor}
}

// Name sets the runtime name used in logs and metrics labels.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// WorkerThreads sets the number of workers for the multi-thread flavor.
// The value is validated by Build. Ignored by the current-thread flavor.
func (b *Builder) WorkerThreads(n int) *Builder {
	if n <= 0 {
		// keep a sentinel so Build can reject it
		n = -1
	}
	b.workerThreads = n
	return b
}

// MaxBlockingThreads bounds the blocking pool.
func (b *Builder) MaxBlockingThreads(n int) *Builder {
	if n <= 0 {
		n = -1
	}
	b.maxBlockingThreads = n
	return b
}

// ThreadKeepAlive sets how long an idle blocking thread lingers.
func (b *Builder) ThreadKeepAlive(d time.Duration) *Builder {
	b.threadKeepAlive = d
	return b
}

// GlobalQueueInterval sets how many ticks a worker runs before checking the
// global queue ahead of its local queue.
func (b *Builder) GlobalQueueInterval(n int) *Builder {
	if n <= 0 {
		n = -1
	}
	b.globalQueueInterval = n
	return b
}

// EnableIO enables the I/O driver (the blocking pool behind SpawnBlocking).
func (b *Builder) EnableIO() *Builder {
	b.enableIO = true
	return b
}

// EnableTime enables the time driver (the delay manager behind SpawnAfter).
func (b *Builder) EnableTime() *Builder {
	b.enableTime = true
	return b
}

// EnableAll enables both the I/O and time drivers.
func (b *Builder) EnableAll() *Builder {
	return b.EnableIO().EnableTime()
}

// DisableLIFOSlot disables the per-worker LIFO slot. With the slot enabled,
// a task woken from a worker runs next on that worker and cannot be stolen
// by idle siblings until it runs.
func (b *Builder) DisableLIFOSlot() *Builder {
	b.disableLIFOSlot = true
	return b
}

// ThreadName sets a fixed name for every runtime thread.
func (b *Builder) ThreadName(name string) *Builder {
	b.threadName = name
	return b
}

// ThreadNameFn sets a function called once per new runtime thread to name it.
// It takes precedence over ThreadName.
func (b *Builder) ThreadNameFn(fn func() string) *Builder {
	b.threadNameFn = fn
	return b
}

// OnThreadStart sets the hook called when a runtime thread starts.
func (b *Builder) OnThreadStart(h ThreadHook) *Builder { b.onThreadStart = h; return b }

// OnThreadStop sets the hook called when a runtime thread exits.
func (b *Builder) OnThreadStop(h ThreadHook) *Builder { b.onThreadStop = h; return b }

// OnThreadPark sets the hook called before a thread waits for work.
func (b *Builder) OnThreadPark(h ThreadHook) *Builder { b.onThreadPark = h; return b }

// OnThreadUnpark sets the hook called when a parked thread wakes.
func (b *Builder) OnThreadUnpark(h ThreadHook) *Builder { b.onThreadUnpark = h; return b }

// OnTaskSpawn sets the hook called when a task is admitted.
func (b *Builder) OnTaskSpawn(h TaskHook) *Builder { b.onTaskSpawn = h; return b }

// OnBeforeTaskPoll sets the hook called before a task runs.
func (b *Builder) OnBeforeTaskPoll(h TaskHook) *Builder { b.onBeforeTaskPoll = h; return b }

// OnAfterTaskPoll sets the hook called after a task returns or panics.
func (b *Builder) OnAfterTaskPoll(h TaskHook) *Builder { b.onAfterTaskPoll = h; return b }

// OnTaskTerminate sets the hook called once a task's handle has resolved.
func (b *Builder) OnTaskTerminate(h TaskHook) *Builder { b.onTaskTerminate = h; return b }

// Logger sets the runtime logger.
func (b *Builder) Logger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// Metrics sets the metrics sink. Defaults to NilMetrics.
func (b *Builder) Metrics(m Metrics) *Builder {
	b.metrics = m
	return b
}

// PanicHandler sets the task panic handler. Defaults to LogPanicHandler.
func (b *Builder) PanicHandler(h PanicHandler) *Builder {
	b.panicHandler = h
	return b
}

// Flavor returns the flavor the builder was created with.
func (b *Builder) Flavor() Flavor { return b.flavor }

// IOEnabled reports whether EnableIO was called.
func (b *Builder) IOEnabled() bool { return b.enableIO }

// TimeEnabled reports whether EnableTime was called.
func (b *Builder) TimeEnabled() bool { return b.enableTime }

// LIFOSlotDisabled reports whether DisableLIFOSlot was called.
func (b *Builder) LIFOSlotDisabled() bool { return b.disableLIFOSlot }

// HasThreadNameFn reports whether a thread name function is set.
func (b *Builder) HasThreadNameFn() bool { return b.threadNameFn != nil }

// HasLogger reports whether a logger is set.
func (b *Builder) HasLogger() bool { return b.logger != nil }

// config is the frozen copy of a builder held by a Runtime.
type config struct {
	flavor              Flavor
	name                string
	workers             int
	maxBlockingThreads  int
	threadKeepAlive     time.Duration
	globalQueueInterval int

	enableIO   bool
	enableTime bool
	lifoSlot   bool

	threadName   string
	threadNameFn func() string

	onThreadStart    ThreadHook
	onThreadStop     ThreadHook
	onThreadPark     ThreadHook
	onThreadUnpark   ThreadHook
	onTaskSpawn      TaskHook
	onBeforeTaskPoll TaskHook
	onAfterTaskPoll  TaskHook
	onTaskTerminate  TaskHook

	logger       *zap.Logger
	metrics      Metrics
	panicHandler PanicHandler
}

func (b *Builder) freeze() (config, error) {
	cfg := config{
		flavor:              b.flavor,
		name:                b.name,
		workers:             b.workerThreads,
		maxBlockingThreads:  b.maxBlockingThreads,
		threadKeepAlive:     b.threadKeepAlive,
		globalQueueInterval: b.globalQueueInterval,
		enableIO:            b.enableIO,
		enableTime:          b.enableTime,
		lifoSlot:            !b.disableLIFOSlot,
		threadName:          b.threadName,
		threadNameFn:        b.threadNameFn,
		onThreadStart:       b.onThreadStart,
		onThreadStop:        b.onThreadStop,
		onThreadPark:        b.onThreadPark,
		onThreadUnpark:      b.onThreadUnpark,
		onTaskSpawn:         b.onTaskSpawn,
		onBeforeTaskPoll:    b.onBeforeTaskPoll,
		onAfterTaskPoll:     b.onAfterTaskPoll,
		onTaskTerminate:     b.onTaskTerminate,
		logger:              nopIfNil(b.logger),
		metrics:             b.metrics,
		panicHandler:        b.panicHandler,
	}

	switch cfg.flavor {
	case FlavorMultiThread:
		switch {
		case cfg.workers == 0:
			cfg.workers = runtime.GOMAXPROCS(0)
		case cfg.workers < 0 || cfg.workers > MaxWorkerThreads:
			return config{}, ErrInvalidWorkerThreads
		}
	case FlavorCurrentThread:
		cfg.workers = 1
		// a single worker has no siblings to hide work from
		cfg.lifoSlot = false
	default:
		return config{}, fmt.Errorf("%w: %d", ErrUnknownFlavor, int(cfg.flavor))
	}

	switch {
	case cfg.maxBlockingThreads == 0:
		cfg.maxBlockingThreads = defaultMaxBlockingThreads
	case cfg.maxBlockingThreads < 0:
		return config{}, ErrInvalidMaxBlockingThreads
	}
	switch {
	case cfg.globalQueueInterval == 0:
		cfg.globalQueueInterval = defaultGlobalQueueInterval
	case cfg.globalQueueInterval < 0 || cfg.globalQueueInterval > maxGlobalQueueInterval:
		return config{}, ErrInvalidGlobalQueueInterval
	}
	if cfg.threadKeepAlive <= 0 {
		cfg.threadKeepAlive = defaultThreadKeepAlive
	}
	if cfg.name == "" {
		cfg.name = defaultRuntimeName
	}
	if cfg.threadName == "" {
		cfg.threadName = defaultThreadName
	}
	if cfg.metrics == nil {
		cfg.metrics = &NilMetrics{}
	}
	if cfg.panicHandler == nil {
		cfg.panicHandler = &LogPanicHandler{Logger: cfg.logger}
	}
	return cfg, nil
}

// Build validates the configuration, starts the workers and returns the runtime.
func (b *Builder) Build() (*Runtime, error) {
	cfg, err := b.freeze()
	if err != nil {
		return nil, err
	}
	return newRuntime(cfg), nil
}
