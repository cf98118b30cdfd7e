// Package cmd holds HAL's cobra command tree. Structure grounded on the
// teacher's CLI root (cmd/cli/root.go): a package-level rootCmd plus an
// init() that wires subcommands, adapted here to export Execute() for a
// separate cmd/hal/main.go to call, the way cmd/worker/cmd/serve.go expects
// a root command to already exist above it.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hal",
	Short: "HAL job orchestrator",
	Long: "-------------------------------------------------------------------\n" +
		"                      HAL Job Orchestrator\n" +
		"-------------------------------------------------------------------",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command, returning any error instead of exiting
// directly so main can control the process's exit code.
func Execute() error {
	return rootCmd.Execute()
}
