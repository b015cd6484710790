package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Orbiter admin CLI. Subcommands (bootstrap, tenant, fleet, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "orbiter",
	Short:         "Orbiter admin CLI",
	Long:          "Administrative utilities for Orbiter (platform bootstrap, tenant management, database fleet operations).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
