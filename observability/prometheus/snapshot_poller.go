package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/taskrt/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RuntimeSnapshotProvider provides current runtime stats snapshots.
// *core.Runtime implements it.
type RuntimeSnapshotProvider interface {
	Stats() core.RuntimeStats
}

var _ RuntimeSnapshotProvider = (*core.Runtime)(nil)

// SnapshotPoller periodically exports runtime Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runtimesMu sync.RWMutex
	runtimes   map[string]RuntimeSnapshotProvider

	workers         *prom.GaugeVec
	running         *prom.GaugeVec
	queued          *prom.GaugeVec
	active          *prom.GaugeVec
	delayed         *prom.GaugeVec
	blockingThreads *prom.GaugeVec
	blockingIdle    *prom.GaugeVec
	blockingQueued  *prom.GaugeVec
	spawned         *prom.GaugeVec
	lifoPolls       *prom.GaugeVec
	steals          *prom.GaugeVec
	lifoSlot        *prom.GaugeVec

	stateMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "taskrt",
			Name:      name,
			Help:      help,
		}, []string{"runtime"})
	}

	p := &SnapshotPoller{
		interval:        interval,
		runtimes:        make(map[string]RuntimeSnapshotProvider),
		workers:         gauge("runtime_workers", "Worker count per runtime."),
		running:         gauge("runtime_running", "Runtime running state (1=running, 0=stopped)."),
		queued:          gauge("runtime_queued", "Tasks waiting in run queues."),
		active:          gauge("runtime_active", "Tasks executing on workers."),
		delayed:         gauge("runtime_delayed", "Tasks waiting in the time driver."),
		blockingThreads: gauge("runtime_blocking_threads", "Blocking pool thread count."),
		blockingIdle:    gauge("runtime_blocking_idle_threads", "Idle blocking pool threads."),
		blockingQueued:  gauge("runtime_blocking_queued", "Tasks waiting for a blocking thread."),
		spawned:         gauge("runtime_spawned_tasks", "Tasks spawned since the runtime started."),
		lifoPolls:       gauge("runtime_lifo_polls", "Tasks taken from worker LIFO slots."),
		steals:          gauge("runtime_steals", "Successful work-steal operations."),
		lifoSlot:        gauge("runtime_lifo_slot_enabled", "LIFO slot state (1=enabled, 0=disabled)."),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.workers, &p.running, &p.queued, &p.active, &p.delayed,
		&p.blockingThreads, &p.blockingIdle, &p.blockingQueued,
		&p.spawned, &p.lifoPolls, &p.steals, &p.lifoSlot,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}
	return p, nil
}

// AddRuntime adds or replaces a runtime snapshot provider by name.
func (p *SnapshotPoller) AddRuntime(name string, provider RuntimeSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runtime")
	p.runtimesMu.Lock()
	p.runtimes[name] = provider
	p.runtimesMu.Unlock()
}

// RemoveRuntime stops exporting a runtime and deletes its series.
func (p *SnapshotPoller) RemoveRuntime(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "runtime")
	p.runtimesMu.Lock()
	delete(p.runtimes, name)
	p.runtimesMu.Unlock()

	for _, vec := range p.vecs() {
		vec.DeleteLabelValues(name)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.started {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.started {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.started = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) vecs() []*prom.GaugeVec {
	return []*prom.GaugeVec{
		p.workers, p.running, p.queued, p.active, p.delayed,
		p.blockingThreads, p.blockingIdle, p.blockingQueued,
		p.spawned, p.lifoPolls, p.steals, p.lifoSlot,
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runtimesMu.RLock()
	defer p.runtimesMu.RUnlock()

	for name, provider := range p.runtimes {
		stats := provider.Stats()
		p.workers.WithLabelValues(name).Set(float64(stats.Workers))
		p.running.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.queued.WithLabelValues(name).Set(float64(stats.Queued))
		p.active.WithLabelValues(name).Set(float64(stats.Active))
		p.delayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.blockingThreads.WithLabelValues(name).Set(float64(stats.BlockingThreads))
		p.blockingIdle.WithLabelValues(name).Set(float64(stats.IdleBlockingThreads))
		p.blockingQueued.WithLabelValues(name).Set(float64(stats.BlockingQueued))
		p.spawned.WithLabelValues(name).Set(float64(stats.Spawned))
		p.lifoPolls.WithLabelValues(name).Set(float64(stats.LIFOPolls))
		p.steals.WithLabelValues(name).Set(float64(stats.Steals))
		p.lifoSlot.WithLabelValues(name).Set(boolGauge(stats.LIFOSlotEnabled))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
