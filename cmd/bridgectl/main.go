package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Operator CLI for the language-bridge execution engine",
		Long:  "bridgectl stands up a short-lived copy of the engine (worker pool and/or script repository, per subcommand) to run one operation and print its result, mirroring how the teacher's own CLI commands invoke a function without a daemon.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(poolCmd())
	rootCmd.AddCommand(scriptsCmd())
	rootCmd.AddCommand(shellCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
