// Package facade is the single stateless surface every caller — the CLI,
// the daemon's own handlers, or a Go package consumer — goes through. It
// owns no state of its own beyond references to the Pool and the script
// Repository; every call either borrows an Executor for the duration of
// one request or talks straight to the Repository/Cache, then returns.
//
// This mirrors the teacher's internal/executor package doc: "Invoke is
// the single entry point for all synchronous function calls", with the
// pipeline collapsed to match this spec's simpler surface (no runtime
// resolution, no circuit breaker, no compilation guard) and generalized
// from one component (Executor) fronting a VM pool to one component
// (Facade) fronting a worker Pool plus a script Repository.
package facade

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/langbridge/bridge-engine/internal/audit"
	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/pool"
	"github.com/langbridge/bridge-engine/internal/protocol"
	"github.com/langbridge/bridge-engine/internal/scripts"
)

// Options configures a new Facade. Cache and Audit are optional; a nil
// Cache means script loads always hit the Repository directly, and a
// nil Audit means invocations are not persisted anywhere.
type Options struct {
	Pool          *pool.Pool
	Repository    *scripts.Repository
	Cache         *scripts.Cache
	Audit         *audit.Log
	BorrowTimeout time.Duration

	// DefaultSecurityMode is used when a caller passes the zero value
	// SecurityMode to Execute/Evaluate/CallModule. Per spec.md's v2.0.21
	// correction this defaults to ADMIN for host-originated calls.
	DefaultSecurityMode protocol.SecurityMode
}

// Facade is safe for concurrent use. The zero value is not usable;
// construct with New.
type Facade struct {
	pool  *pool.Pool
	repo  *scripts.Repository
	cache *scripts.Cache
	audit *audit.Log

	borrowTimeout time.Duration
	defaultMode   protocol.SecurityMode
}

// New builds a Facade from already-constructed components. The Facade
// does not own the lifecycle of any of them; callers shut down the Pool,
// close the Cache, and flush the Audit log independently.
func New(opts Options) *Facade {
	f := &Facade{
		pool:          opts.Pool,
		repo:          opts.Repository,
		cache:         opts.Cache,
		audit:         opts.Audit,
		borrowTimeout: opts.BorrowTimeout,
		defaultMode:   opts.DefaultSecurityMode,
	}
	if f.borrowTimeout <= 0 {
		f.borrowTimeout = pool.DefaultBorrowTimeout
	}
	if f.defaultMode == "" {
		f.defaultMode = protocol.ModeAdmin
	}
	return f
}

func (f *Facade) resolveMode(mode protocol.SecurityMode) protocol.SecurityMode {
	if mode == "" {
		return f.defaultMode
	}
	return mode
}

// invoke borrows an Executor, runs fn against it, always returns the
// Executor to the pool, and records an audit row (if auditing is
// configured) regardless of outcome. command and mode are recorded
// verbatim; they do not affect dispatch, which fn already captures.
func (f *Facade) invoke(ctx context.Context, command string, mode protocol.SecurityMode, fn func(ctx context.Context, e *executor.Executor) (json.RawMessage, error)) (json.RawMessage, error) {
	e, err := f.pool.Borrow(ctx, f.borrowTimeout)
	if err != nil {
		f.recordAudit("", command, mode, time.Now(), err)
		return nil, err
	}

	start := time.Now()
	result, callErr := fn(ctx, e)
	f.pool.Return(e)
	f.recordAudit(e.ID, command, mode, start, callErr)
	return result, callErr
}

func (f *Facade) recordAudit(executorID, command string, mode protocol.SecurityMode, start time.Time, callErr error) {
	if f.audit == nil {
		return
	}
	rec := &audit.Record{
		RequestID:    uuid.NewString(),
		ExecutorID:   executorID,
		Command:      command,
		SecurityMode: string(mode),
		Success:      callErr == nil,
		DurationMs:   time.Since(start).Milliseconds(),
		At:           time.Now().UTC(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	f.audit.Enqueue(rec)
}

// Execute runs code in a borrowed worker's persistent scope.
func (f *Facade) Execute(ctx context.Context, code string, vars map[string]interface{}, mode protocol.SecurityMode) (json.RawMessage, error) {
	mode = f.resolveMode(mode)
	return f.invoke(ctx, string(protocol.CmdExecute), mode, func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.Execute(ctx, code, vars, mode)
	})
}

// Evaluate evaluates a single expression in a borrowed worker's
// persistent scope.
func (f *Facade) Evaluate(ctx context.Context, expression string, vars map[string]interface{}, mode protocol.SecurityMode) (json.RawMessage, error) {
	mode = f.resolveMode(mode)
	return f.invoke(ctx, string(protocol.CmdEvaluate), mode, func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.Evaluate(ctx, expression, vars, mode)
	})
}

// CallModule imports module, resolves function by attribute lookup, and
// invokes it with args/kwargs on a borrowed worker.
func (f *Facade) CallModule(ctx context.Context, module, function string, args []interface{}, kwargs map[string]interface{}, mode protocol.SecurityMode) (json.RawMessage, error) {
	mode = f.resolveMode(mode)
	return f.invoke(ctx, string(protocol.CmdCallModule), mode, func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.CallModule(ctx, module, function, args, kwargs, mode)
	})
}

// CallScript loads the script at path and evaluates its code with
// variables {"args": args, "kwargs": kwargs} under ADMIN mode, as
// required by spec.md §4.5 (a saved script is trusted operator content,
// not untrusted caller input).
func (f *Facade) CallScript(ctx context.Context, path string, args []interface{}, kwargs map[string]interface{}) (json.RawMessage, error) {
	s, err := f.repo.LoadByPath(path)
	if err != nil {
		return nil, err
	}
	vars := map[string]interface{}{"args": args, "kwargs": kwargs}
	return f.invoke(ctx, string(protocol.CmdEvaluate), protocol.ModeAdmin, func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.Evaluate(ctx, s.Code, vars, protocol.ModeAdmin)
	})
}

// CheckSyntax returns parse/style findings for code without executing it.
func (f *Facade) CheckSyntax(ctx context.Context, code string) (json.RawMessage, error) {
	return f.invoke(ctx, string(protocol.CmdCheckSyntax), "", func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.CheckSyntax(ctx, code)
	})
}

// GetCompletions returns completion candidates at (line, column) in code.
func (f *Facade) GetCompletions(ctx context.Context, code string, line, column int) (json.RawMessage, error) {
	return f.invoke(ctx, string(protocol.CmdGetCompletions), "", func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.GetCompletions(ctx, code, line, column)
	})
}

// VersionInfo is the facade-level version() result named in spec.md §6:
// the child runtime's reported version and whether the probe succeeded.
type VersionInfo struct {
	Version   string `json:"version"`
	Available bool   `json:"available"`
}

// Version reports the child runtime version and availability. Unlike
// Execute/Evaluate/CallModule, a failed probe (borrow timeout, poisoned
// Executor, child error) is folded into Available=false rather than
// returned as an error: version() is itself an availability check, not
// an operation that can fail.
func (f *Facade) Version(ctx context.Context) (json.RawMessage, error) {
	raw, err := f.invoke(ctx, string(protocol.CmdVersion), "", func(ctx context.Context, e *executor.Executor) (json.RawMessage, error) {
		return e.Version(ctx)
	})
	info := VersionInfo{Available: err == nil}
	if err == nil {
		if uerr := json.Unmarshal(raw, &info.Version); uerr != nil {
			info.Version = string(raw)
		}
	}
	return json.Marshal(info)
}

// PoolStats returns the current pool statistics.
func (f *Facade) PoolStats() pool.Stats { return f.pool.Stats() }

// ResizePool grows or shrinks the worker pool to n (1 <= n <= 20).
func (f *Facade) ResizePool(ctx context.Context, n int) error {
	return f.pool.Resize(ctx, n)
}

// SaveScript creates or updates a named script and invalidates any
// cached copy so a subsequent LoadScript does not serve the stale
// entry for the rest of its TTL.
func (f *Facade) SaveScript(name, code, description, author, folderPath string) (*scripts.SavedScript, error) {
	s, err := f.repo.Save(name, code, description, author, folderPath)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Invalidate(context.Background(), name)
	}
	return s, nil
}

// LoadScript returns the named script, served from the cache when one
// is configured.
func (f *Facade) LoadScript(ctx context.Context, name string) (*scripts.SavedScript, error) {
	if f.cache != nil {
		return f.cache.Load(ctx, name)
	}
	return f.repo.Load(name)
}

// LoadScriptByPath returns the script whose folder path and name match
// path, as split by Repository.LoadByPath.
// Path lookups bypass the cache: the cache is keyed by name, and a
// folder-path index would double the entries cached for every script
// without a corresponding reduction in Repository reads (callers of
// loadByPath are rare compared to name-based loads).
func (f *Facade) LoadScriptByPath(path string) (*scripts.SavedScript, error) {
	return f.repo.LoadByPath(path)
}

// ListScripts returns every script's metadata, sorted by name.
func (f *Facade) ListScripts() []*scripts.SavedScript { return f.repo.List() }

// DeleteScript removes a named script and invalidates any cached copy.
func (f *Facade) DeleteScript(name string) error {
	if err := f.repo.Delete(name); err != nil {
		return err
	}
	if f.cache != nil {
		f.cache.Invalidate(context.Background(), name)
	}
	return nil
}
