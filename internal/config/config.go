// Package config declares the nested Config tree for the bridge engine
// daemon and CLI, and the load paths that fill it in: compiled-in
// defaults, an optional YAML file, then environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// PoolConfig controls the Executor pool (internal/pool).
type PoolConfig struct {
	Size              int           `yaml:"size"`                // 1-20, default 3
	BorrowTimeout     time.Duration `yaml:"borrow_timeout"`      // default 30s
	HealthSweepPeriod time.Duration `yaml:"health_sweep_period"` // default 30s
}

// ExecutorConfig controls individual child workers (internal/executor).
type ExecutorConfig struct {
	PythonPath     string        `yaml:"python_path"`     // default "python3"
	ScriptDir      string        `yaml:"script_dir"`      // default childscript.DefaultDir()
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`   // default 5s
	RequestTimeout time.Duration `yaml:"request_timeout"` // default 30s
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`  // default 5s
}

// ScriptConfig controls the signed script repository (internal/scripts).
type ScriptConfig struct {
	IndexPath     string `yaml:"index_path"`     // default /var/lib/bridge-engine/index.json
	SigningSecret string `yaml:"signing_secret"` // HMAC-SHA-256 key; see scripts.DeriveDefaultSigningSecret for the unset fallback

	CacheEnabled bool   `yaml:"cache_enabled"` // read-through Redis metadata cache
	CacheAddr    string `yaml:"cache_addr"`    // default localhost:6379
	CacheTTL     time.Duration `yaml:"cache_ttl"` // default 5m

	BackupEnabled bool   `yaml:"backup_enabled"` // S3 export/import
	BackupBucket  string `yaml:"backup_bucket"`
	BackupPrefix  string `yaml:"backup_prefix"` // default "bridge-engine/scripts"
	BackupRegion  string `yaml:"backup_region"`

	// BackupAccessKey/BackupSecretKey pin the S3 client to a static
	// credential pair instead of the default chain (env, shared config,
	// IAM role). Leave both empty to use the default chain.
	BackupAccessKey string `yaml:"backup_access_key"`
	BackupSecretKey string `yaml:"backup_secret_key"`
}

// TracingConfig controls OpenTelemetry span emission.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`     // otlp-http (alias otlp), stdout
	Endpoint    string  `yaml:"endpoint"`     // localhost:4318
	ServiceName string  `yaml:"service_name"` // bridge-engine
	SampleRate  float64 `yaml:"sample_rate"`  // 1.0
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Namespace        string    `yaml:"namespace"` // bridge_engine
	HistogramBuckets []float64 `yaml:"histogram_buckets"`
}

// LoggingConfig controls the slog-backed structured logger.
type LoggingConfig struct {
	Level          string `yaml:"level"`  // debug, info, warn, error
	Format         string `yaml:"format"` // text, json
	IncludeTraceID bool   `yaml:"include_trace_id"`
}

// AuditConfig controls the Postgres invocation audit log.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DSN           string        `yaml:"dsn"`
	BatchSize     int           `yaml:"batch_size"`     // default 100
	BufferSize    int           `yaml:"buffer_size"`    // default 1000
	FlushInterval time.Duration `yaml:"flush_interval"` // default 500ms
	FlushTimeout  time.Duration `yaml:"flush_timeout"`  // default 5s
}

// ObservabilityConfig groups the three observability surfaces.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// DaemonConfig controls cmd/bridged's own listener surface.
type DaemonConfig struct {
	HealthAddr string `yaml:"health_addr"` // serves /healthz and /metrics; empty disables
}

// Config is the root configuration tree.
type Config struct {
	Pool          PoolConfig          `yaml:"pool"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Scripts       ScriptConfig        `yaml:"scripts"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Daemon        DaemonConfig        `yaml:"daemon"`
}

// DefaultConfig returns a Config populated with the defaults named
// throughout this file's field comments.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Size:              3,
			BorrowTimeout:     30 * time.Second,
			HealthSweepPeriod: 30 * time.Second,
		},
		Executor: ExecutorConfig{
			PythonPath:     "python3",
			ReadyTimeout:   5 * time.Second,
			RequestTimeout: 30 * time.Second,
			ShutdownGrace:  5 * time.Second,
		},
		Scripts: ScriptConfig{
			IndexPath:    "/var/lib/bridge-engine/index.json",
			CacheAddr:    "localhost:6379",
			CacheTTL:     5 * time.Minute,
			BackupPrefix: "bridge-engine/scripts",
		},
		Audit: AuditConfig{
			BatchSize:     100,
			BufferSize:    1000,
			FlushInterval: 500 * time.Millisecond,
			FlushTimeout:  5 * time.Second,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "bridge-engine",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "bridge_engine",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
		Daemon: DaemonConfig{
			HealthAddr: ":9191",
		},
	}
}

// LoadFromFile layers a YAML config file on top of DefaultConfig. A
// missing file is not an error; callers that require an explicit file
// should stat it themselves first.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies BRIDGE_-prefixed environment variable overrides
// on top of cfg, mutating it in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("BRIDGE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Size = n
		}
	}
	if v := os.Getenv("BRIDGE_BORROW_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.BorrowTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("BRIDGE_PYTHON_PATH"); v != "" {
		cfg.Executor.PythonPath = v
	}
	if v := os.Getenv("BRIDGE_SCRIPT_DIR"); v != "" {
		cfg.Executor.ScriptDir = v
	}
	if v := os.Getenv("BRIDGE_REQUEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.RequestTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_INDEX_PATH"); v != "" {
		cfg.Scripts.IndexPath = v
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_SIGNING_SECRET"); v != "" {
		cfg.Scripts.SigningSecret = v
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_CACHE_ENABLED"); v != "" {
		cfg.Scripts.CacheEnabled = parseBool(v)
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_CACHE_ADDR"); v != "" {
		cfg.Scripts.CacheAddr = v
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_BACKUP_ENABLED"); v != "" {
		cfg.Scripts.BackupEnabled = parseBool(v)
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_BACKUP_BUCKET"); v != "" {
		cfg.Scripts.BackupBucket = v
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_BACKUP_ACCESS_KEY"); v != "" {
		cfg.Scripts.BackupAccessKey = v
	}
	if v := os.Getenv("BRIDGE_SCRIPTS_BACKUP_SECRET_KEY"); v != "" {
		cfg.Scripts.BackupSecretKey = v
	}
	if v := os.Getenv("BRIDGE_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v)
	}
	if v := os.Getenv("BRIDGE_AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
	}
	if v := os.Getenv("BRIDGE_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("BRIDGE_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("BRIDGE_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("BRIDGE_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("BRIDGE_HEALTH_ADDR"); v != "" {
		cfg.Daemon.HealthAddr = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
