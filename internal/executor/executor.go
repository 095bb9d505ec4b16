// Package executor owns a single child bridge subprocess and the
// newline-delimited JSON pipe connecting it to the host.
//
// # Pipe discipline
//
// An Executor spawns one Python 3 worker running the bridge script
// embedded in internal/childscript, then speaks one JSON object per
// line in each direction over the worker's stdin/stdout. At most one
// request is ever outstanding on a given Executor: Execute, Evaluate,
// CallModule, CheckSyntax, GetCompletions and Version all serialize on
// a single mutex, matching the spec's "at most one in-flight request
// per Executor" invariant.
//
// # Poisoning
//
// If a read times out or the pipe errors, the Executor's healthy flag
// is permanently cleared. A poisoned Executor must be replaced by the
// owning Pool before it can serve another request; Executor itself
// never attempts recovery. This mirrors the teacher's Docker Client
// (internal/docker/manager.go), which instead redials a fresh TCP
// connection on a broken pipe — redialing isn't available to us because
// the "connection" here is the subprocess's own stdin/stdout, so a
// broken pipe means a dead or wedged process, not a dropped socket.
//
// # Reading under a deadline
//
// os.Pipe-backed readers don't expose a portable read deadline, so a
// single background goroutine (started in New) drains stdout into a
// channel for the life of the Executor; request methods race a receive
// on that channel against time.After(deadline), exactly the pattern the
// teacher's cmd/agent uses for its own persistent-process reads
// (readLineWithLimit raced against time.After in executePersistent).
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/langbridge/bridge-engine/internal/childscript"
	"github.com/langbridge/bridge-engine/internal/logging"
	"github.com/langbridge/bridge-engine/internal/protocol"
	"github.com/langbridge/bridge-engine/internal/tracing"
)

const maxResponseLineBytes = 16 * 1024 * 1024

// Options configures a new Executor. Zero values fall back to the
// defaults enumerated in spec.md §6.
type Options struct {
	PythonPath      string // default "python3"
	ScriptDir       string // where the bridge script is written; default childscript.DefaultDir()
	ReadyTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownGrace   time.Duration
}

func (o *Options) setDefaults() {
	if o.PythonPath == "" {
		o.PythonPath = "python3"
	}
	if o.ScriptDir == "" {
		o.ScriptDir = childscript.DefaultDir()
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 5 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 5 * time.Second
	}
}

type lineResult struct {
	data []byte
	err  error
}

// Executor owns one child worker process and its pipe. The zero value
// is not usable; construct with New.
type Executor struct {
	ID         string
	opts       Options
	scriptPath string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan lineResult

	mu      sync.Mutex // serializes the six request operations
	healthy atomic.Bool
	closed  atomic.Bool
}

// New spawns a worker subprocess and blocks until its ready line
// arrives or opts.ReadyTimeout elapses.
func New(opts Options) (*Executor, error) {
	opts.setDefaults()

	if err := os.MkdirAll(opts.ScriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare script dir: %w", err)
	}
	scriptPath, err := childscript.WriteTo(opts.ScriptDir)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(opts.PythonPath, "-u", scriptPath)
	cmd.Env = os.Environ()
	setNewProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		os.Remove(scriptPath)
		return nil, fmt.Errorf("start child worker: %w", err)
	}

	e := &Executor{
		ID:         uuid.NewString(),
		opts:       opts,
		scriptPath: scriptPath,
		cmd:        cmd,
		stdin:      stdin,
		lines:      make(chan lineResult, 8),
	}
	e.healthy.Store(true)

	go e.readLoop(stdout)
	go sampleStderr(e.ID, stderr)

	if err := e.awaitReady(); err != nil {
		e.healthy.Store(false)
		_ = e.killNow()
		os.Remove(scriptPath)
		return nil, err
	}

	return e, nil
}

func (e *Executor) readLoop(r io.Reader) {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := readLineLimited(reader, maxResponseLineBytes)
		if len(line) > 0 {
			e.lines <- lineResult{data: line}
		}
		if err != nil {
			e.lines <- lineResult{err: err}
			return
		}
	}
}

func readLineLimited(r *bufio.Reader, limit int) ([]byte, error) {
	var out []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(out)+len(chunk) > limit {
			return nil, fmt.Errorf("response line exceeds %d bytes", limit)
		}
		out = append(out, chunk...)
		if err == nil {
			return out, nil
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return out, err
	}
}

func sampleStderr(executorID string, r io.Reader) {
	reader := bufio.NewReaderSize(r, 4096)
	for {
		line, err := readLineLimited(reader, 4096)
		if len(line) > 0 {
			logging.Op().Debug("child stderr", "executor", executorID, "line", string(line))
		}
		if err != nil {
			return
		}
	}
}

func (e *Executor) awaitReady() error {
	select {
	case lr := <-e.lines:
		if lr.err != nil {
			return protocol.Wrap(protocol.KindTransport, fmt.Errorf("child exited before ready: %w", lr.err))
		}
		var ready protocol.ReadyLine
		if err := json.Unmarshal(lr.data, &ready); err != nil || ready.Status != "ready" {
			return protocol.New(protocol.KindTransport, "child stdout protocol violation: expected ready line")
		}
		return nil
	case <-time.After(e.opts.ReadyTimeout):
		return protocol.New(protocol.KindTimeout, "child did not become ready in time")
	}
}

// Healthy reports whether the Executor is still eligible for reuse.
// Once false it never becomes true again; the owning Pool must replace
// this Executor.
func (e *Executor) Healthy() bool { return e.healthy.Load() }

// ShutdownGrace returns the configured grace period this Executor will
// wait for its child to exit cleanly before being force-killed.
func (e *Executor) ShutdownGrace() time.Duration { return e.opts.ShutdownGrace }

func (e *Executor) poison() { e.healthy.Store(false) }

// roundTrip sends req and waits up to deadline for exactly one response
// line, holding the Executor's request lock for the whole exchange.
func (e *Executor) roundTrip(ctx context.Context, req protocol.Request, deadline time.Duration) (resp *protocol.Response, outErr error) {
	ctx, span := tracing.StartSpan(ctx, "executor.round_trip",
		tracing.AttrExecutorID.String(e.ID),
		tracing.AttrCommand.String(string(req.Command)),
		tracing.AttrSecurityMode.String(string(req.SecurityMode)),
	)
	defer func() {
		if outErr != nil {
			tracing.SetSpanError(span, outErr)
		} else {
			tracing.SetSpanOK(span)
		}
		span.End()
	}()

	if e.closed.Load() {
		return nil, protocol.New(protocol.KindTransport, "executor is shut down")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.healthy.Load() {
		return nil, protocol.New(protocol.KindTransport, "executor is unhealthy")
	}

	payload, err := marshalRequest(req)
	if err != nil {
		return nil, err
	}

	if _, err := e.stdin.Write(payload); err != nil {
		e.poison()
		return nil, protocol.Wrap(protocol.KindTransport, err)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case lr := <-e.lines:
		if lr.err != nil {
			e.poison()
			return nil, protocol.Wrap(protocol.KindTransport, lr.err)
		}
		var resp protocol.Response
		if err := json.Unmarshal(lr.data, &resp); err != nil {
			e.poison()
			return nil, protocol.Wrap(protocol.KindTransport, fmt.Errorf("malformed response line: %w", err))
		}
		if e.extraLineBuffered() {
			e.poison()
			return nil, protocol.New(protocol.KindTransport, "child wrote more than one response line for this request")
		}
		return &resp, nil
	case <-timer.C:
		e.poison()
		return nil, protocol.New(protocol.KindTimeout, "child did not respond in time")
	case <-ctx.Done():
		e.poison()
		return nil, protocol.Wrap(protocol.KindTransport, ctx.Err())
	}
}

// extraLineBuffered reports whether readLoop had already buffered a
// second line by the time the expected response arrived. A child that
// writes two reply lines for one request desyncs the protocol: left
// alone, the stray line sits in e.lines and is consumed as the *next*
// request's response instead of poisoning here. This catches the case
// where the child writes both lines back to back, which is the only way
// the bridge itself could misbehave like this; a line written after this
// check still lands on the next request, so it's a best-effort guard,
// not a guarantee.
func (e *Executor) extraLineBuffered() bool {
	select {
	case <-e.lines:
		return true
	default:
		return false
	}
}

func classifyFailure(resp *protocol.Response) error {
	msg := resp.Error
	switch {
	case msg == "UNKNOWN_COMMAND":
		return protocol.New(protocol.KindUnknownCmd, msg)
	case msg == "SERIALIZATION":
		return protocol.New(protocol.KindSerialization, msg)
	case len(msg) >= len("SECURITY:") && msg[:len("SECURITY:")] == "SECURITY:":
		return protocol.New(protocol.KindSecurity, msg)
	default:
		return (&protocol.Error{Kind: protocol.KindChildError, Message: msg, Traceback: resp.Traceback})
	}
}
