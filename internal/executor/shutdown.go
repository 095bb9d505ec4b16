package executor

import (
	"context"
	"os"
	"time"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

// Shutdown sends the shutdown command, waits up to ShutdownGrace for the
// child to exit on its own, then force-kills it. Idempotent: a second
// call is a no-op.
func (e *Executor) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.healthy.Store(false)

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	e.mu.Lock()
	_, _ = e.roundTripLockedBestEffort(ctx, protocol.Request{Command: protocol.CmdShutdown})
	_ = e.stdin.Close()
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(e.opts.ShutdownGrace):
		_ = e.killNow()
		<-done
	}

	os.Remove(e.scriptPath)
	return nil
}

// roundTripLockedBestEffort is used only from Shutdown, which already
// holds mu; it never poisons (the Executor is already being torn down)
// and ignores timeouts since the process may already be exiting.
func (e *Executor) roundTripLockedBestEffort(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	payload, err := marshalRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := e.stdin.Write(payload); err != nil {
		return nil, err
	}
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case lr := <-e.lines:
		if lr.err != nil {
			return nil, lr.err
		}
		return nil, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
