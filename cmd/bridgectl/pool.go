package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect or exercise a worker pool built from the configured settings",
	}
	cmd.AddCommand(poolStatsCmd())
	cmd.AddCommand(poolResizeCmd())
	return cmd
}

func poolStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Start a pool from config and print its statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			f, cleanup, err := newEphemeralFacade(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			stats := f.PoolStats()
			fmt.Printf("total=%d available=%d in_use=%d healthy=%d\n", stats.TotalSize, stats.Available, stats.InUse, stats.Healthy)
			return nil
		},
	}
}

func poolResizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize <n>",
		Short: "Start a pool from config, resize it to n, and print the resulting statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
				return fmt.Errorf("invalid size %q: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			f, cleanup, err := newEphemeralFacade(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := f.ResizePool(ctx, n); err != nil {
				return err
			}
			stats := f.PoolStats()
			fmt.Printf("total=%d available=%d in_use=%d healthy=%d\n", stats.TotalSize, stats.Available, stats.InUse, stats.Healthy)
			return nil
		},
	}
}
