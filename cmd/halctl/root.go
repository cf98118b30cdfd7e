// Command halctl is a thin HTTP client for the HAL API, grounded on the
// teacher's flat cmd/cli layout: one package main, one file per
// subcommand, a shared client helper, and a persistent --server flag in
// place of the teacher's --gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "halctl",
	Short: "HAL CLI",
	Long: "-------------------------------------------------------------------\n" +
		"                           HAL CLI\n" +
		"-------------------------------------------------------------------",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().String("server", "", "HAL server URL (or HALCTL_SERVER env var)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(submitCodeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(listScheduledCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
