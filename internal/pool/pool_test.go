package pool

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/protocol"
)

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available, skipping pool integration test")
	}
	return path
}

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	py := requirePython(t)
	p, err := New(context.Background(), Config{
		Capacity: capacity,
		ExecutorOptions: executor.Options{
			PythonPath: py,
			ScriptDir:  t.TempDir(),
		},
		HealthSweepPeriod: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestPoolBorrowReturnRoundTrip(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	e, err := p.Borrow(ctx, time.Second)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	stats := p.Stats()
	if stats.InUse != 1 || stats.Available != 1 {
		t.Fatalf("got stats %+v, want 1 in use, 1 available", stats)
	}
	p.Return(e)
	stats = p.Stats()
	if stats.InUse != 0 || stats.Available != 2 {
		t.Fatalf("got stats %+v after return, want 0 in use, 2 available", stats)
	}
}

func TestPoolSizeOneSerializesBorrows(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	e, err := p.Borrow(ctx, time.Second)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	_, err = p.Borrow(ctx, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected second borrow on a pool of size 1 to time out")
	}
	if protocol.KindOf(err) != protocol.KindTimeoutBorrow {
		t.Fatalf("got kind %q, want TIMEOUT_BORROW", protocol.KindOf(err))
	}

	p.Return(e)
	e2, err := p.Borrow(ctx, time.Second)
	if err != nil {
		t.Fatalf("Borrow after return: %v", err)
	}
	p.Return(e2)
}

func TestPoolBorrowImmediateTimeout(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	e, err := p.Borrow(ctx, time.Second)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	defer p.Return(e)

	_, err = p.Borrow(ctx, 0)
	if err == nil {
		t.Fatal("expected immediate borrow with zero deadline to fail")
	}
	if protocol.KindOf(err) != protocol.KindTimeoutBorrow {
		t.Fatalf("got kind %q, want TIMEOUT_BORROW", protocol.KindOf(err))
	}
}

func TestPoolBorrowFairnessFIFO(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	held, err := p.Borrow(ctx, time.Second)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	const waiters = 3
	order := make(chan int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			e, err := p.Borrow(ctx, 2*time.Second)
			if err != nil {
				t.Errorf("waiter %d: Borrow: %v", i, err)
				return
			}
			order <- i
			p.Return(e)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	p.Return(held)
	wg.Wait()
	close(order)

	seen := 0
	for got := range order {
		if got != seen {
			t.Fatalf("waiter %d served in position %d, want arrival order", got, seen)
		}
		seen++
	}
	if seen != waiters {
		t.Fatalf("got %d waiters served, want %d", seen, waiters)
	}
}

func TestPoolResizeDownWithInFlight(t *testing.T) {
	p := newTestPool(t, 3)
	ctx := context.Background()

	borrowed, err := p.Borrow(ctx, time.Second)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	if err := p.Resize(ctx, 1); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	stats := p.Stats()
	if stats.InUse != 1 {
		t.Fatalf("got %d in use after shrink, want the borrowed executor still on loan", stats.InUse)
	}

	p.Return(borrowed)
	time.Sleep(50 * time.Millisecond)
}

func TestPoolResizeUpGrowsCapacity(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	if err := p.Resize(ctx, 3); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	stats := p.Stats()
	if stats.TotalSize != 3 {
		t.Fatalf("got total size %d, want 3", stats.TotalSize)
	}
}

func TestPoolShutdownRejectsNewBorrows(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_, err := p.Borrow(ctx, time.Second)
	if err == nil {
		t.Fatal("expected Borrow after Shutdown to fail")
	}
	if protocol.KindOf(err) != protocol.KindPoolShutdown {
		t.Fatalf("got kind %q, want POOL_SHUTDOWN", protocol.KindOf(err))
	}

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got: %v", err)
	}
}
