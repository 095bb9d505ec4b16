package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bridged",
		Short: "Language-bridge execution engine daemon",
		Long:  "Run the bridge engine as a long-lived daemon: a warm pool of Python worker subprocesses behind a signed script repository and a health/metrics endpoint.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
