package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "raknet-cli",
	Short: "Command Line Interface for raknet peers",
}

func init() {
	rootCmd.AddCommand(
		pingCmd,
		connectCmd,
		genConfigCmd,
		sessionsCmd,
	)
}

// Execute executes root CLI command.
func Execute() {
	rootCmd.Execute() //nolint:errcheck
}
