package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/langbridge/bridge-engine/internal/facade"
)

// shellCmd runs execShell directly. It does not start a pool or a
// script repository: execShell is a side channel that never touches
// either (spec.md §4.5), so standing either one up here would be
// wasted work.
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <command>",
		Short: "Run a host-level shell command (side channel, not the Python bridge)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			f := facade.New(facade.Options{})
			result, err := f.ExecShell(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(result.Stdout)
			fmt.Fprint(os.Stderr, result.Stderr)
			os.Exit(result.ExitCode)
			return nil
		},
	}
}
