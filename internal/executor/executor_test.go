package executor

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available, skipping child-bridge integration test")
	}
	return path
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	py := requirePython(t)
	e, err := New(Options{PythonPath: py, ScriptDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func TestEvaluateBasic(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	raw, err := e.Evaluate(ctx, "2 ** 10", nil, protocol.ModeRestricted)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var got int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != 1024 {
		t.Fatalf("got %d, want 1024", got)
	}
}

func TestExecuteWithVariables(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	raw, err := e.Execute(ctx, "result = x + y", map[string]interface{}{"x": 10, "y": 20}, protocol.ModeRestricted)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var got int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != 30 {
		t.Fatalf("got %d, want 30", got)
	}
}

func TestPersistentScopeWithinOneExecutor(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "a = 7", nil, protocol.ModeRestricted); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	raw, err := e.Evaluate(ctx, "a + 1", nil, protocol.ModeRestricted)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var got int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != 8 {
		t.Fatalf("got %d, want 8", got)
	}
}

func TestRestrictedModeRejectsImport(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, "import os\nresult = 1", nil, protocol.ModeRestricted)
	if err == nil {
		t.Fatal("expected SECURITY error, got nil")
	}
	if protocol.KindOf(err) != protocol.KindSecurity {
		t.Fatalf("got kind %q, want SECURITY (err=%v)", protocol.KindOf(err), err)
	}
}

func TestAdminModeAllowsImport(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	raw, err := e.Execute(ctx, "import os\nresult = 1 if os.path.sep else 0", nil, protocol.ModeAdmin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var got int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestTimeoutPoisonsExecutor(t *testing.T) {
	e := newTestExecutor(t)
	e.opts.RequestTimeout = 300 * time.Millisecond
	ctx := context.Background()

	_, err := e.Execute(ctx, "while True: pass", nil, protocol.ModeAdmin)
	if err == nil {
		t.Fatal("expected TIMEOUT error, got nil")
	}
	if protocol.KindOf(err) != protocol.KindTimeout {
		t.Fatalf("got kind %q, want TIMEOUT", protocol.KindOf(err))
	}
	if e.Healthy() {
		t.Fatal("expected executor to be poisoned after timeout")
	}
}

func TestVersionAndPing(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	if !e.Ping(ctx) {
		t.Fatal("expected ping to succeed on a healthy executor")
	}

	raw, err := e.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v == "" {
		t.Fatal("expected non-empty version string")
	}
}

func TestCheckSyntaxReportsSyntaxError(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	raw, err := e.CheckSyntax(ctx, "def broken(:\n")
	if err != nil {
		t.Fatalf("CheckSyntax: %v", err)
	}
	var findings []protocol.Finding
	if err := json.Unmarshal(raw, &findings); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(findings) == 0 || findings[0].Severity != protocol.SeverityError {
		t.Fatalf("expected at least one error finding, got %+v", findings)
	}
}

func TestExtraLineBufferedDetectsStraySecondLine(t *testing.T) {
	e := &Executor{lines: make(chan lineResult, 8)}

	if e.extraLineBuffered() {
		t.Fatal("expected no extra line buffered on a fresh channel")
	}

	e.lines <- lineResult{data: []byte(`{"success":true}`)}
	if !e.extraLineBuffered() {
		t.Fatal("expected a buffered line to be detected")
	}
	if e.extraLineBuffered() {
		t.Fatal("expected extraLineBuffered to drain at most one line")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
