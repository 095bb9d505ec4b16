package pool

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/logging"
	"github.com/langbridge/bridge-engine/internal/metrics"
	"github.com/langbridge/bridge-engine/internal/protocol"
)

// Resize grows or shrinks the pool to m Executors (1 <= m <= 20).
// Growth creates new Executors concurrently and adds them to the
// available queue. Shrinkage only evicts idle Executors pulled off the
// available queue; an Executor currently on loan to a caller is never
// preempted, and it is not evicted when it is later returned either.
func (p *Pool) Resize(ctx context.Context, m int) error {
	if m < MinCapacity || m > MaxCapacity {
		return protocol.New(protocol.KindConfig, fmt.Sprintf("pool capacity must be in [%d, %d], got %d", MinCapacity, MaxCapacity, m))
	}
	if p.shuttingDown.Load() {
		return protocol.New(protocol.KindPoolShutdown, "pool is shutting down")
	}

	p.mu.Lock()
	current := len(p.roster)
	p.mu.Unlock()

	switch {
	case m > current:
		return p.growTo(ctx, m-current)
	case m < current:
		p.shrinkBy(current - m)
	}
	p.capacity.Store(int32(m))
	return nil
}

func (p *Pool) growTo(ctx context.Context, n int) error {
	created := make([]*executor.Executor, n)
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			e, err := executor.New(p.execOpts)
			if err != nil {
				return err
			}
			created[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range created {
			if e != nil {
				_ = e.Shutdown(context.Background())
			}
		}
		return protocol.Wrap(protocol.KindNotReady, fmt.Errorf("grow pool: %w", err))
	}

	if p.shuttingDown.Load() {
		for _, e := range created {
			_ = e.Shutdown(ctx)
		}
		return protocol.New(protocol.KindPoolShutdown, "pool is shutting down")
	}

	p.mu.Lock()
	for _, e := range created {
		p.roster[e.ID] = e
	}
	p.mu.Unlock()

	for _, e := range created {
		p.available <- e
		metrics.IncExecutorCreated()
	}
	return nil
}

// shrinkBy removes up to n idle Executors from the available queue. If
// fewer than n are currently idle, it stops early and the Executors on
// loan stay in the roster: Return puts them back on the queue as usual,
// and Stats().TotalSize stays above the requested capacity.
func (p *Pool) shrinkBy(n int) {
	for i := 0; i < n; i++ {
		select {
		case e := <-p.available:
			p.mu.Lock()
			delete(p.roster, e.ID)
			p.mu.Unlock()
			metrics.IncExecutorRetired("resize")
			go func(e *executor.Executor) {
				ctx, cancel := context.WithTimeout(context.Background(), e.ShutdownGrace())
				defer cancel()
				_ = e.Shutdown(ctx)
			}(e)
		default:
			return
		}
	}
}

// Shutdown stops the health sweep, drains and shuts down every
// Executor in the roster, and makes all subsequent Borrow calls fail
// immediately. Shutdown is idempotent.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	close(p.sweepStop)
	<-p.sweepDone

	p.mu.Lock()
	seen := make(map[string]*executor.Executor, len(p.roster))
	for id, e := range p.roster {
		seen[id] = e
	}
	p.roster = make(map[string]*executor.Executor)
	p.mu.Unlock()

	// Drain without closing: replace() and growTo() may still be mid-flight
	// from work started before shuttingDown flipped, and both check the
	// flag before offering an Executor to the queue, so draining here
	// rather than closing avoids a send-on-closed-channel race.
	for {
		select {
		case e := <-p.available:
			seen[e.ID] = e
		default:
			goto drained
		}
	}
drained:

	g, _ := errgroup.WithContext(ctx)
	for _, e := range seen {
		e := e
		g.Go(func() error {
			return e.Shutdown(ctx)
		})
	}
	return g.Wait()
}

// healthSweepLoop periodically checks every roster Executor's health
// flag and replaces any that have gone unhealthy. It never holds p.mu
// while a replacement is in flight; replace() takes its own short locks
// around the roster map mutation and does the actual subprocess spawn
// without holding any pool lock.
func (p *Pool) healthSweepLoop() {
	defer close(p.sweepDone)

	ticker := time.NewTicker(p.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	p.mu.Lock()
	snapshot := make([]*executor.Executor, 0, len(p.roster))
	for _, e := range p.roster {
		snapshot = append(snapshot, e)
	}
	p.mu.Unlock()

	for _, e := range snapshot {
		if e.Healthy() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := p.replace(ctx, e); err != nil {
			logging.Op().Warn("health sweep: replace failed", "executor", e.ID, "error", err)
		}
		cancel()
	}
}
