package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

func execCmd() *cobra.Command {
	var (
		file string
		vars string
		mode string
	)

	cmd := &cobra.Command{
		Use:   "exec <code>",
		Short: "Run code in a fresh worker's persistent scope and print the bound `result`",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(args, file)
			if err != nil {
				return err
			}
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

			result, err := f.Execute(ctx, code, variables, protocol.SecurityMode(mode))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read code from a file instead of the argument")
	cmd.Flags().StringVar(&vars, "vars", "", "JSON object of variables to overlay")
	cmd.Flags().StringVar(&mode, "mode", "", "Security mode: RESTRICTED or ADMIN (default: engine default)")
	return cmd
}

func readCode(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read code file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return "", fmt.Errorf("provide code as an argument or via --file")
}

func parseVars(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("--vars is not valid JSON: %w", err)
	}
	return vars, nil
}

func printJSON(raw json.RawMessage) error {
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(string(pretty))
	return nil
}
