// Package probes attaches tracing probes to a runtime builder.
//
// Every probe fire is counted in a Prometheus counter vector and, while an
// execution trace is being collected, logged as a runtime/trace annotation in
// the "taskrt" category. The taskrt launcher registers the probes on illumos
// only; other programs may call Register on any platform.
package probes

import (
	"context"
	"errors"
	"fmt"
	"runtime/trace"
	"strconv"

	"github.com/Swind/taskrt/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Probe names
const (
	TaskSpawn      = "task-spawn"
	TaskPollStart  = "task-poll-start"
	TaskPollEnd    = "task-poll-end"
	TaskTerminate  = "task-terminate"
	ThreadPark     = "thread-park"
	ThreadUnpark   = "thread-unpark"
	traceCategory  = "taskrt"
	probeNamespace = "taskrt"
)

var ErrNilBuilder = errors.New("probes: nil builder")

// Register attaches the probes to b, counting fires on the default
// Prometheus registerer.
func Register(b *core.Builder) error {
	return RegisterWith(b, prom.DefaultRegisterer)
}

// RegisterWith attaches the probes to b, counting fires on reg. Registering
// twice on the same registerer shares the counters. It overwrites b's task
// spawn, poll and terminate hooks and its thread park and unpark hooks.
func RegisterWith(b *core.Builder, reg prom.Registerer) error {
	if b == nil {
		return ErrNilBuilder
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	fires, err := registerCollector(reg, prom.NewCounterVec(prom.CounterOpts{
		Namespace: probeNamespace,
		Name:      "probe_fires_total",
		Help:      "Number of times each runtime tracing probe fired.",
	}, []string{"probe"}))
	if err != nil {
		return fmt.Errorf("register probe counters: %w", err)
	}

	p := &provider{
		taskSpawn:     fires.WithLabelValues(TaskSpawn),
		taskPollStart: fires.WithLabelValues(TaskPollStart),
		taskPollEnd:   fires.WithLabelValues(TaskPollEnd),
		taskTerminate: fires.WithLabelValues(TaskTerminate),
		threadPark:    fires.WithLabelValues(ThreadPark),
		threadUnpark:  fires.WithLabelValues(ThreadUnpark),
	}

	b.OnTaskSpawn(func(m core.TaskMeta) { p.task(p.taskSpawn, TaskSpawn, m) }).
		OnBeforeTaskPoll(func(m core.TaskMeta) { p.task(p.taskPollStart, TaskPollStart, m) }).
		OnAfterTaskPoll(func(m core.TaskMeta) { p.task(p.taskPollEnd, TaskPollEnd, m) }).
		OnTaskTerminate(func(m core.TaskMeta) { p.task(p.taskTerminate, TaskTerminate, m) }).
		OnThreadPark(func(ctx context.Context) { p.thread(ctx, p.threadPark, ThreadPark) }).
		OnThreadUnpark(func(ctx context.Context) { p.thread(ctx, p.threadUnpark, ThreadUnpark) })
	return nil
}

type provider struct {
	taskSpawn     prom.Counter
	taskPollStart prom.Counter
	taskPollEnd   prom.Counter
	taskTerminate prom.Counter
	threadPark    prom.Counter
	threadUnpark  prom.Counter
}

func (p *provider) task(c prom.Counter, probe string, m core.TaskMeta) {
	c.Inc()
	if trace.IsEnabled() {
		trace.Log(context.Background(), traceCategory, probe+" runtime="+m.Runtime+" id="+strconv.FormatUint(uint64(m.ID), 10))
	}
}

func (p *provider) thread(ctx context.Context, c prom.Counter, probe string) {
	c.Inc()
	if trace.IsEnabled() {
		trace.Log(ctx, traceCategory, probe+" thread="+core.ThreadName(ctx))
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
