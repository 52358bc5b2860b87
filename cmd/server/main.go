package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// main wires the CLI. Business logic lives in internal packages.
func main() {
	rootCmd := &cobra.Command{
		Use:           "waterlily",
		Short:         "Survey profile service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
