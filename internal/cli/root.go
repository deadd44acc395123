// Package cli implements the arbor command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Capability-based authorization kernel for autonomous agents",
	Long:  "Grants, revokes, and checks capabilities; scores agent trust; runs untrusted values through attack-specific sanitizers. Deny is always the default.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.arbor/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
