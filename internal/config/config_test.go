package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromFileMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Pool.Size != 3 {
		t.Fatalf("got pool size %d, want default 3", cfg.Pool.Size)
	}
}

func TestLoadFromFileOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
pool:
  size: 7
scripts:
  index_path: /tmp/scripts.json
observability:
  tracing:
    enabled: true
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Pool.Size != 7 {
		t.Fatalf("got pool size %d, want 7", cfg.Pool.Size)
	}
	if cfg.Scripts.IndexPath != "/tmp/scripts.json" {
		t.Fatalf("got index path %q", cfg.Scripts.IndexPath)
	}
	if !cfg.Observability.Tracing.Enabled {
		t.Fatal("expected tracing.enabled to be overridden to true")
	}
	// Fields untouched by the file keep their defaults.
	if cfg.Executor.PythonPath != "python3" {
		t.Fatalf("got python path %q, want default python3", cfg.Executor.PythonPath)
	}
}

func TestLoadFromEnvOverridesConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("BRIDGE_POOL_SIZE", "9")
	t.Setenv("BRIDGE_BORROW_TIMEOUT_MS", "1500")
	t.Setenv("BRIDGE_SCRIPTS_SIGNING_SECRET", "env-secret")
	t.Setenv("BRIDGE_SCRIPTS_BACKUP_ENABLED", "true")
	t.Setenv("BRIDGE_LOG_LEVEL", "debug")

	LoadFromEnv(cfg)

	if cfg.Pool.Size != 9 {
		t.Fatalf("got pool size %d, want 9", cfg.Pool.Size)
	}
	if cfg.Pool.BorrowTimeout != 1500*time.Millisecond {
		t.Fatalf("got borrow timeout %v, want 1500ms", cfg.Pool.BorrowTimeout)
	}
	if cfg.Scripts.SigningSecret != "env-secret" {
		t.Fatalf("got signing secret %q", cfg.Scripts.SigningSecret)
	}
	if !cfg.Scripts.BackupEnabled {
		t.Fatal("expected backup_enabled to be overridden to true")
	}
	if cfg.Observability.Logging.Level != "debug" {
		t.Fatalf("got log level %q, want debug", cfg.Observability.Logging.Level)
	}
}

func TestLoadFromEnvIgnoresUnsetVariables(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.Pool.Size
	LoadFromEnv(cfg)
	if cfg.Pool.Size != before {
		t.Fatalf("got pool size %d changed with no env set, want unchanged %d", cfg.Pool.Size, before)
	}
}

func TestLoadFromEnvIgnoresMalformedInt(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.Pool.Size
	t.Setenv("BRIDGE_POOL_SIZE", "not-a-number")
	LoadFromEnv(cfg)
	if cfg.Pool.Size != before {
		t.Fatalf("got pool size %d, want unchanged %d on malformed input", cfg.Pool.Size, before)
	}
}
