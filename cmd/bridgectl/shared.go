package main

import (
	"context"
	"fmt"

	"github.com/langbridge/bridge-engine/internal/config"
	"github.com/langbridge/bridge-engine/internal/executor"
	"github.com/langbridge/bridge-engine/internal/facade"
	"github.com/langbridge/bridge-engine/internal/pool"
	"github.com/langbridge/bridge-engine/internal/protocol"
	"github.com/langbridge/bridge-engine/internal/scripts"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

// newEphemeralFacade stands up a pool and script repository for the
// lifetime of a single CLI invocation, matching the teacher's
// standalone-invoke pattern in cmd/nova/function.go (build backend +
// pool + executor, run one call, tear down).
func newEphemeralFacade(ctx context.Context, cfg *config.Config) (*facade.Facade, func(), error) {
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
		return nil, nil, fmt.Errorf("start pool: %w", err)
	}

	repo, err := openRepository(cfg)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Executor.ShutdownGrace)
		defer cancel()
		_ = p.Shutdown(shutdownCtx)
		return nil, nil, err
	}

	f := facade.New(facade.Options{
		Pool:                p,
		Repository:          repo,
		BorrowTimeout:       cfg.Pool.BorrowTimeout,
		DefaultSecurityMode: protocol.ModeAdmin,
	})

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Executor.ShutdownGrace)
		defer cancel()
		_ = p.Shutdown(shutdownCtx)
	}
	return f, cleanup, nil
}

func openRepository(cfg *config.Config) (*scripts.Repository, error) {
	secret := cfg.Scripts.SigningSecret
	if secret == "" {
		secret = scripts.DeriveDefaultSigningSecret()
	}
	repo, err := scripts.Open(cfg.Scripts.IndexPath, secret)
	if err != nil {
		return nil, fmt.Errorf("open script repository: %w", err)
	}
	return repo, nil
}
