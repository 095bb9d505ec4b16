package pool

import (
	"context"
	"time"

	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/logging"
	"github.com/langbridge/bridge-engine/internal/metrics"
	"github.com/langbridge/bridge-engine/internal/protocol"
	"github.com/langbridge/bridge-engine/internal/tracing"
)

// Borrow waits up to waitDeadline for an idle, healthy Executor. If the
// Executor it receives from the queue has already gone unhealthy, it is
// replaced once and Borrow polls the queue a second time without
// extending the deadline; if that second poll also fails to produce a
// healthy Executor, Borrow fails with KindTimeoutBorrow.
func (p *Pool) Borrow(ctx context.Context, waitDeadline time.Duration) (out *executor.Executor, outErr error) {
	ctx, span := tracing.StartSpan(ctx, "pool.borrow")
	defer func() {
		if outErr != nil {
			tracing.SetSpanError(span, outErr)
		} else {
			span.SetAttributes(tracing.AttrExecutorID.String(out.ID))
			tracing.SetSpanOK(span)
		}
		span.End()
	}()

	if p.shuttingDown.Load() {
		return nil, protocol.New(protocol.KindPoolShutdown, "pool is shutting down")
	}

	deadline := time.Now().Add(waitDeadline)
	e, err := p.pollOnce(ctx, waitDeadline)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, protocol.New(protocol.KindPoolShutdown, "pool is shutting down")
	}
	if e.Healthy() {
		return e, nil
	}

	// The replacement, if any, is pushed onto the available queue by
	// replace() itself; fall through to a single retry poll so FIFO
	// ordering among waiters is preserved rather than handing the
	// replacement straight to this caller.
	if _, rerr := p.replace(ctx, e); rerr != nil {
		logging.Op().Warn("borrow: replace of unhealthy executor failed", "executor", e.ID, "error", rerr)
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	e2, err := p.pollOnce(ctx, remaining)
	if err != nil {
		return nil, err
	}
	if e2 == nil || !e2.Healthy() {
		return nil, protocol.New(protocol.KindTimeoutBorrow, "no healthy executor available within borrow deadline")
	}
	return e2, nil
}

// pollOnce performs a single receive on the available queue, bounded by
// timeout. A nil, nil return means the queue was closed (pool shutdown).
func (p *Pool) pollOnce(ctx context.Context, timeout time.Duration) (*executor.Executor, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e, ok := <-p.available:
		if !ok {
			return nil, nil
		}
		return e, nil
	case <-timer.C:
		metrics.IncBorrowTimeout()
		return nil, protocol.New(protocol.KindTimeoutBorrow, "borrow timed out waiting for an available executor")
	case <-ctx.Done():
		return nil, protocol.Wrap(protocol.KindTimeoutBorrow, ctx.Err())
	}
}

// Return gives a borrowed Executor back to the pool. A still-healthy
// Executor rejoins the available queue; an unhealthy one is replaced
// asynchronously so Return never blocks the caller on a subprocess spawn.
func (p *Pool) Return(e *executor.Executor) {
	if e == nil {
		return
	}
	if p.shuttingDown.Load() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.ShutdownGrace())
			defer cancel()
			_ = e.Shutdown(ctx)
		}()
		return
	}
	if !e.Healthy() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := p.replace(ctx, e); err != nil {
				logging.Op().Warn("return: replace of unhealthy executor failed", "executor", e.ID, "error", err)
			}
		}()
		return
	}
	p.available <- e
}

// replace retires a dead Executor and creates a fresh one in its place.
// Concurrent attempts to replace the same Executor (one from Borrow, one
// from the health sweep, say) are coalesced with singleflight so the
// worker spawn only happens once per dead slot.
func (p *Pool) replace(ctx context.Context, dead *executor.Executor) (*executor.Executor, error) {
	v, err, _ := p.replaceGroup.Do(dead.ID, func() (interface{}, error) {
		p.mu.Lock()
		_, stillPresent := p.roster[dead.ID]
		if stillPresent {
			delete(p.roster, dead.ID)
		}
		p.mu.Unlock()

		if !stillPresent {
			// Another goroutine already replaced this slot.
			return (*executor.Executor)(nil), nil
		}

		go func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), dead.ShutdownGrace())
			defer cancel()
			_ = dead.Shutdown(shutdownCtx)
		}()

		metrics.IncExecutorRetired("unhealthy")

		fresh, err := executor.New(p.execOpts)
		if err != nil {
			return nil, err
		}
		metrics.IncExecutorCreated()

		if p.shuttingDown.Load() {
			_ = fresh.Shutdown(ctx)
			return (*executor.Executor)(nil), nil
		}

		p.mu.Lock()
		p.roster[fresh.ID] = fresh
		p.mu.Unlock()

		p.available <- fresh
		return fresh, nil
	})
	if err != nil {
		return nil, protocol.Wrap(protocol.KindNotReady, err)
	}
	fresh, _ := v.(*executor.Executor)
	return fresh, nil
}
