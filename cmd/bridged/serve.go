package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/langbridge/bridge-engine/internal/audit"
	"github.com/langbridge/bridge-engine/internal/config"
	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/facade"
	"github.com/langbridge/bridge-engine/internal/logging"
	"github.com/langbridge/bridge-engine/internal/metrics"
	"github.com/langbridge/bridge-engine/internal/pool"
	"github.com/langbridge/bridge-engine/internal/protocol"
	"github.com/langbridge/bridge-engine/internal/scripts"
	"github.com/langbridge/bridge-engine/internal/tracing"
)

func serveCmd() *cobra.Command {
	var (
		poolSize   int
		healthAddr string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge engine daemon",
		Long:  "Start the worker pool, the script repository, and the health/metrics listener, and block until a termination signal arrives.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("pool-size") {
				cfg.Pool.Size = poolSize
			}
			if cmd.Flags().Changed("health-addr") {
				cfg.Daemon.HealthAddr = healthAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.Logging.Level = logLevel
			}

			logging.SetLevelFromString(cfg.Observability.Logging.Level)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx := context.Background()

			if err := tracing.Init(ctx, tracing.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer tracing.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			signingSecret := cfg.Scripts.SigningSecret
			if signingSecret == "" {
				signingSecret = scripts.DeriveDefaultSigningSecret()
			}
			repo, err := scripts.Open(cfg.Scripts.IndexPath, signingSecret)
			if err != nil {
				return fmt.Errorf("open script repository: %w", err)
			}

			var cache *scripts.Cache
			if cfg.Scripts.CacheEnabled {
				cache = scripts.NewCache(repo, cfg.Scripts.CacheAddr, cfg.Scripts.CacheTTL)
				defer cache.Close()
			}

			var auditLog *audit.Log
			if cfg.Audit.Enabled {
				auditLog, err = audit.Open(ctx, audit.Config{
					DSN:           cfg.Audit.DSN,
					BatchSize:     cfg.Audit.BatchSize,
					BufferSize:    cfg.Audit.BufferSize,
					FlushInterval: cfg.Audit.FlushInterval,
					FlushTimeout:  cfg.Audit.FlushTimeout,
				})
				if err != nil {
					return fmt.Errorf("open audit log: %w", err)
				}
				defer auditLog.Shutdown(cfg.Audit.FlushTimeout)
			}

			p, err := pool.New(ctx, pool.Config{
				Capacity: cfg.Pool.Size,
				ExecutorOptions: executor.Options{
					PythonPath:     cfg.Executor.PythonPath,
					ScriptDir:      cfg.Executor.ScriptDir,
					ReadyTimeout:   cfg.Executor.ReadyTimeout,
					RequestTimeout: cfg.Executor.RequestTimeout,
					ShutdownGrace:  cfg.Executor.ShutdownGrace,
				},
				HealthSweepPeriod: cfg.Pool.HealthSweepPeriod,
			})
			if err != nil {
				return fmt.Errorf("start pool: %w", err)
			}

			f := facade.New(facade.Options{
				Pool:                p,
				Repository:          repo,
				Cache:               cache,
				Audit:               auditLog,
				BorrowTimeout:       cfg.Pool.BorrowTimeout,
				DefaultSecurityMode: protocol.ModeAdmin,
			})

			var healthServer *http.Server
			if cfg.Daemon.HealthAddr != "" {
				healthServer = newHealthServer(cfg.Daemon.HealthAddr, f)
				go func() {
					if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("health server stopped", "error", err)
					}
				}()
				logging.Op().Info("health/metrics listener started", "addr", cfg.Daemon.HealthAddr)
			}

			logging.Op().Info("bridge engine daemon started", "pool_size", cfg.Pool.Size)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received")

			if healthServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = healthServer.Shutdown(shutdownCtx)
				cancel()
			}

			poolShutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := p.Shutdown(poolShutdownCtx); err != nil {
				logging.Op().Warn("pool shutdown reported errors", "error", err)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&poolSize, "pool-size", 0, "Worker pool size (overrides config)")
	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "Address to serve /healthz and /metrics on (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	return cmd
}
