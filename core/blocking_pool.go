package core

import (
	"context"
	"runtime/pprof"
	"sync"
	"time"
)

// blockingPool runs tasks that may block for a long time on dedicated
// goroutines so they do not occupy a worker. Threads are created on demand
// up to maxBlockingThreads and exit after threadKeepAlive of idleness.
type blockingPool struct {
	rt *Runtime

	mu      sync.Mutex
	queue   []*task
	threads int
	idle    int
	closed  bool

	notify chan struct{} // one token per idle thread woken by spawn
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newBlockingPool(rt *Runtime) *blockingPool {
	return &blockingPool{
		rt:     rt,
		notify: make(chan struct{}, rt.cfg.maxBlockingThreads),
		stop:   make(chan struct{}),
	}
}

func (p *blockingPool) spawn(tk *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queue = append(p.queue, tk)
	switch {
	case p.idle > 0:
		p.idle--
		p.notify <- struct{}{}
	case p.threads < p.rt.cfg.maxBlockingThreads:
		p.threads++
		p.wg.Add(1)
		// Named here, under the lock, so concurrent spawns draw names in
		// thread creation order.
		go p.run(p.rt.nextThreadName())
	}
}

func (p *blockingPool) run(name string) {
	defer p.wg.Done()
	rt := p.rt

	ctx := rt.threadContext(name)
	pprof.Do(ctx, pprof.Labels("thread", name, "runtime", rt.cfg.name), func(ctx context.Context) {
		if hook := rt.cfg.onThreadStart; hook != nil {
			hook(ctx)
		}
		rt.cfg.logger.Debug("blocking thread started", threadFields(rt, name, "blocking")...)

		p.loop(ctx, name)

		if hook := rt.cfg.onThreadStop; hook != nil {
			hook(ctx)
		}
		rt.cfg.logger.Debug("blocking thread stopped", threadFields(rt, name, "blocking")...)
	})
}

func (p *blockingPool) loop(ctx context.Context, name string) {
	keepAlive := time.NewTimer(p.rt.cfg.threadKeepAlive)
	defer keepAlive.Stop()

	for {
		p.mu.Lock()
		if ctx.Err() != nil {
			// Shutting down; queued tasks are dropped by shutdown.
			p.threads--
			p.mu.Unlock()
			return
		}
		if len(p.queue) > 0 {
			tk := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.rt.execute(ctx, tk, name)
			continue
		}
		if p.closed {
			p.threads--
			p.mu.Unlock()
			return
		}
		p.idle++
		p.mu.Unlock()

		if hook := p.rt.cfg.onThreadPark; hook != nil {
			hook(ctx)
		}
		keepAlive.Reset(p.rt.cfg.threadKeepAlive)
		select {
		case <-p.notify:
			// spawn already took us off the idle count
		case <-p.stop:
			p.mu.Lock()
			select {
			case <-p.notify:
			default:
				p.idle--
			}
			p.threads--
			p.mu.Unlock()
			return
		case <-keepAlive.C:
			p.mu.Lock()
			select {
			case <-p.notify:
				// a spawn raced the timeout and counted on us
				p.mu.Unlock()
			default:
				p.idle--
				p.threads--
				p.mu.Unlock()
				return
			}
		}
		if hook := p.rt.cfg.onThreadUnpark; hook != nil {
			hook(ctx)
		}
	}
}

// shutdown lets running blocking tasks finish, drops queued ones and waits
// for every blocking thread to exit.
func (p *blockingPool) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	dropped := p.queue
	p.queue = nil
	close(p.stop)
	p.mu.Unlock()

	for _, tk := range dropped {
		tk.finish(ErrRuntimeShutdown)
	}
	p.wg.Wait()
}

func (p *blockingPool) counts() (threads, idle, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads, p.idle, len(p.queue)
}
