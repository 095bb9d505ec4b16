package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

func evalCmd() *cobra.Command {
	var (
		vars string
		mode string
	)

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a single expression in a fresh worker and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVars(vars)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Pool.Size = 1

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			f, cleanup, err := newEphemeralFacade(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := f.Evaluate(ctx, args[0], variables, protocol.SecurityMode(mode))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&vars, "vars", "", "JSON object of variables to overlay")
	cmd.Flags().StringVar(&mode, "mode", "", "Security mode: RESTRICTED or ADMIN (default: engine default)")
	return cmd
}
