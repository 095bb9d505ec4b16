package facade

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/pool"
	"github.com/langbridge/bridge-engine/internal/protocol"
	"github.com/langbridge/bridge-engine/internal/scripts"
)

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available, skipping facade integration test")
	}
	return path
}

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	py := requirePython(t)

	p, err := pool.New(context.Background(), pool.Config{
		Capacity: 2,
		ExecutorOptions: executor.Options{
			PythonPath: py,
			ScriptDir:  t.TempDir(),
		},
		HealthSweepPeriod: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	repo, err := scripts.Open(t.TempDir()+"/scripts.json", "test-signing-secret")
	if err != nil {
		t.Fatalf("scripts.Open: %v", err)
	}

	return New(Options{
		Pool:          p,
		Repository:    repo,
		BorrowTimeout: time.Second,
	})
}

func TestFacadeExecuteReturnsResult(t *testing.T) {
	f := newTestFacade(t)
	raw, err := f.Execute(context.Background(), "result = 1 + 1", nil, protocol.ModeRestricted)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var got int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestFacadeDefaultSecurityModeIsAdmin(t *testing.T) {
	f := newTestFacade(t)
	if f.resolveMode("") != protocol.ModeAdmin {
		t.Fatalf("got default mode %q, want ADMIN", f.resolveMode(""))
	}
}

func TestFacadeSaveLoadCallScriptRoundTrip(t *testing.T) {
	f := newTestFacade(t)

	if _, err := f.SaveScript("double", "args[0] * 2", "doubles its first arg", "test", "/utils"); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}

	loaded, err := f.LoadScript(context.Background(), "double")
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if loaded.Code != "args[0] * 2" {
		t.Fatalf("got code %q", loaded.Code)
	}

	raw, err := f.CallScript(context.Background(), "/utils/double", []interface{}{21}, nil)
	if err != nil {
		t.Fatalf("CallScript: %v", err)
	}
	var got int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestFacadeVersionReportsAvailable(t *testing.T) {
	f := newTestFacade(t)
	raw, err := f.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	var info VersionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("unmarshal VersionInfo: %v", err)
	}
	if !info.Available {
		t.Fatal("got Available=false, want true for a healthy child")
	}
	if info.Version == "" {
		t.Fatal("got empty Version string")
	}
}

func TestFacadeCallScriptNotFound(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.CallScript(context.Background(), "/nope", nil, nil)
	if protocol.KindOf(err) != protocol.KindNotFound {
		t.Fatalf("got kind %q, want NOT_FOUND", protocol.KindOf(err))
	}
}

func TestFacadeDeleteScriptThenLoadFails(t *testing.T) {
	f := newTestFacade(t)
	if _, err := f.SaveScript("temp", "result = 1", "", "", ""); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if err := f.DeleteScript("temp"); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	_, err := f.LoadScript(context.Background(), "temp")
	if protocol.KindOf(err) != protocol.KindNotFound {
		t.Fatalf("got kind %q, want NOT_FOUND after delete", protocol.KindOf(err))
	}
}

func TestFacadePoolStatsAndResize(t *testing.T) {
	f := newTestFacade(t)
	stats := f.PoolStats()
	if stats.TotalSize != 2 {
		t.Fatalf("got total size %d, want 2", stats.TotalSize)
	}
	if err := f.ResizePool(context.Background(), 3); err != nil {
		t.Fatalf("ResizePool: %v", err)
	}
	if got := f.PoolStats().TotalSize; got != 3 {
		t.Fatalf("got total size %d after resize, want 3", got)
	}
}

func TestFacadeExecShellCapturesOutputAndExitCode(t *testing.T) {
	f := newTestFacade(t)

	ok, err := f.ExecShell(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("ExecShell: %v", err)
	}
	if ok.Stdout != "hello\n" || ok.ExitCode != 0 {
		t.Fatalf("got %+v", ok)
	}

	failed, err := f.ExecShell(context.Background(), "exit 7")
	if err != nil {
		t.Fatalf("ExecShell: %v", err)
	}
	if failed.ExitCode != 7 {
		t.Fatalf("got exit code %d, want 7", failed.ExitCode)
	}
}
