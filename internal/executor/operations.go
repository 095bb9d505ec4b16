package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/langbridge/bridge-engine/internal/metrics"
	"github.com/langbridge/bridge-engine/internal/protocol"
)

func (e *Executor) call(ctx context.Context, req protocol.Request) (json.RawMessage, error) {
	start := time.Now()
	raw, err := e.doCall(ctx, req)
	kind := ""
	if err != nil {
		kind = string(protocol.KindOf(err))
	}
	metrics.RecordCommand(string(req.Command), string(req.SecurityMode), kind, time.Since(start).Milliseconds())
	return raw, err
}

func (e *Executor) doCall(ctx context.Context, req protocol.Request) (json.RawMessage, error) {
	resp, err := e.roundTrip(ctx, req, e.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, classifyFailure(resp)
	}
	return resp.Result, nil
}

// Execute runs code in the worker's persistent scope, overlaid with vars,
// and returns whatever the child bound to `result` (or null).
func (e *Executor) Execute(ctx context.Context, code string, vars map[string]interface{}, mode protocol.SecurityMode) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{
		Command:      protocol.CmdExecute,
		Code:         code,
		Variables:    vars,
		SecurityMode: mode,
	})
}

// Evaluate evaluates a single expression in the worker's persistent scope.
func (e *Executor) Evaluate(ctx context.Context, expression string, vars map[string]interface{}, mode protocol.SecurityMode) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{
		Command:      protocol.CmdEvaluate,
		Expression:   expression,
		Variables:    vars,
		SecurityMode: mode,
	})
}

// CallModule imports module, resolves function by attribute lookup, and
// invokes it with args/kwargs.
func (e *Executor) CallModule(ctx context.Context, module, function string, args []interface{}, kwargs map[string]interface{}, mode protocol.SecurityMode) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{
		Command:      protocol.CmdCallModule,
		Module:       module,
		Function:     function,
		Args:         args,
		Kwargs:       kwargs,
		SecurityMode: mode,
	})
}

// CheckSyntax returns parse/style findings for code. Never fails: a
// transport-level failure still surfaces as an error here because the
// caller (Pool) is responsible for replacement, but the child itself
// never raises for malformed code.
func (e *Executor) CheckSyntax(ctx context.Context, code string) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{Command: protocol.CmdCheckSyntax, Code: code})
}

// GetCompletions returns completion candidates at (line, column) in code.
func (e *Executor) GetCompletions(ctx context.Context, code string, line, column int) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{Command: protocol.CmdGetCompletions, Code: code, Line: line, Column: column})
}

// Version returns a short string identifying the child runtime.
func (e *Executor) Version(ctx context.Context) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{Command: protocol.CmdVersion})
}

// ListModules returns the child's installed module names, best-effort.
func (e *Executor) ListModules(ctx context.Context) (json.RawMessage, error) {
	return e.call(ctx, protocol.Request{Command: protocol.CmdListModules})
}

// ClearGlobals empties the worker's persistent scope.
func (e *Executor) ClearGlobals(ctx context.Context) error {
	_, err := e.call(ctx, protocol.Request{Command: protocol.CmdClearGlobals})
	return err
}

// Ping checks responsiveness with a short deadline. It never returns an
// error to the caller; a failed ping both returns false and poisons the
// Executor so the owning Pool's health sweep replaces it.
func (e *Executor) Ping(ctx context.Context) bool {
	resp, err := e.roundTrip(ctx, protocol.Request{Command: protocol.CmdPing}, 5*time.Second)
	if err != nil {
		e.poison()
		return false
	}
	return resp.Success
}
