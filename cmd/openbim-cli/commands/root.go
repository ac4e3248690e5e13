// Package commands implements the openBIM CLI subcommands.
package commands

import (
	"github.com/spf13/cobra"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:   "openbim",
	Short: "openBIM service CLI - extract quantities and materials from building models",
	Long: `The openBIM CLI runs the extraction pipeline locally: it normalizes
units, resolves element quantities and material volumes from an exported
building model document, and can split a model into per-storey files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
