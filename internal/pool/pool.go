// Package pool manages a fixed-capacity set of Executors (internal/executor)
// and hands them out to callers with bounded wait, fair FIFO ordering, and
// automatic replacement of unhealthy workers.
//
// # Design rationale
//
// Spawning a Python worker and waiting for its ready line costs tens of
// milliseconds. The Pool keeps a warm set of Executors alive so callers
// never pay that cost on the hot path; an Executor only leaves the pool
// when it is explicitly resized away or replaced after going unhealthy.
//
// This is a direct simplification of the teacher's internal/pool, which
// keys a separate functionPool per VM configuration; there is exactly one
// configuration here (one child language, one bridge script), so the
// per-key indirection collapses to a single flat roster.
//
// # Concurrency model
//
// roster is a plain map guarded by mu; available is a buffered channel
// acting as the FIFO of idle, healthy Executors (a channel gives us fair
// ordering and a built-in blocking-with-deadline receive for free, where
// the teacher instead pairs a slice with a sync.Cond). Structural changes
// (replace, resize, shutdown) take mu; the hot path (Borrow success,
// Return) only touches the channel.
//
// # Invariants
//
//   - len(roster) never exceeds the configured capacity after a resize
//     step completes, except after a shrink that found too few idle
//     Executors (see shrinkBy).
//   - every Executor in `available` is also a value in `roster`.
//   - once shuttingDown is set, no new Executor is created and Borrow
//     fails immediately.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/metrics"
	"github.com/langbridge/bridge-engine/internal/protocol"
)

const (
	MinCapacity = 1
	MaxCapacity = 20

	DefaultBorrowTimeout     = 30 * time.Second
	DefaultHealthSweepPeriod = 30 * time.Second
)

// Config configures a new Pool.
type Config struct {
	Capacity          int
	ExecutorOptions   executor.Options
	HealthSweepPeriod time.Duration
}

func (c *Config) setDefaults() {
	if c.HealthSweepPeriod <= 0 {
		c.HealthSweepPeriod = DefaultHealthSweepPeriod
	}
}

// Stats is the derived, never-stored pool statistics value object.
type Stats struct {
	TotalSize int
	Available int
	InUse     int
	Healthy   int
}

// Pool is safe for concurrent use. The zero value is not usable;
// construct with New.
type Pool struct {
	execOpts executor.Options

	mu     sync.Mutex
	roster map[string]*executor.Executor

	available chan *executor.Executor
	capacity  atomic.Int32

	shuttingDown atomic.Bool
	replaceGroup singleflight.Group

	sweepPeriod time.Duration
	sweepStop   chan struct{}
	sweepDone   chan struct{}
}

// New creates a Pool with n Executors (1 <= n <= 20), created
// concurrently, and starts the background health sweep. If any
// Executor fails to start, the ones already created are torn down and
// New returns an error; no partially-initialized Pool is returned.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	cfg.setDefaults()
	if cfg.Capacity < MinCapacity || cfg.Capacity > MaxCapacity {
		return nil, protocol.New(protocol.KindConfig, fmt.Sprintf("pool capacity must be in [%d, %d], got %d", MinCapacity, MaxCapacity, cfg.Capacity))
	}

	p := &Pool{
		execOpts:    cfg.ExecutorOptions,
		roster:      make(map[string]*executor.Executor, cfg.Capacity),
		available:   make(chan *executor.Executor, MaxCapacity),
		sweepPeriod: cfg.HealthSweepPeriod,
		sweepStop:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}
	p.capacity.Store(int32(cfg.Capacity))

	created := make([]*executor.Executor, cfg.Capacity)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Capacity; i++ {
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
		return nil, protocol.Wrap(protocol.KindNotReady, fmt.Errorf("initialize pool: %w", err))
	}
	_ = gctx

	for _, e := range created {
		p.roster[e.ID] = e
		p.available <- e
		metrics.IncExecutorCreated()
	}

	go p.healthSweepLoop()
	return p, nil
}

// Stats returns the current derived pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := len(p.roster)
	healthy := 0
	for _, e := range p.roster {
		if e.Healthy() {
			healthy++
		}
	}
	p.mu.Unlock()

	avail := len(p.available)
	stats := Stats{
		TotalSize: total,
		Available: avail,
		InUse:     total - avail,
		Healthy:   healthy,
	}
	metrics.SetPoolStats(stats.Available, stats.InUse, stats.Healthy)
	return stats
}
