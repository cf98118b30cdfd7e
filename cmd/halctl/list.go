package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type scheduledEntry struct {
	JobID         string `json:"job_id"`
	Device        string `json:"device"`
	ScheduledTime string `json:"scheduled_time"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

var listScheduledCmd = &cobra.Command{
	Use:   "list-scheduled",
	Short: "List jobs waiting for their scheduled time",
	Long:  "halctl list-scheduled",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var entries []scheduledEntry
		if err := client.get("/list_scheduled", &entries); err != nil {
			return fmt.Errorf("failed to list scheduled jobs: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No scheduled jobs.")
			return nil
		}

		fmt.Printf("%-38s  %-12s  %-10s  %s\n", "JOB ID", "STATUS", "DEVICE", "SCHEDULED TIME")
		fmt.Println(strings.Repeat("─", 90))
		for _, e := range entries {
			fmt.Printf("%-38s  %-12s  %-10s  %s\n", e.JobID, e.Status, e.Device, e.ScheduledTime)
		}
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered providers",
	Long:  "halctl providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var names []string
		if err := client.get("/providers", &names); err != nil {
			return fmt.Errorf("failed to list providers: %w", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List a provider's devices",
	Long:  "halctl devices --provider <name>",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		if provider == "" {
			return fmt.Errorf("--provider flag is required")
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var devices []map[string]any
		if err := client.get("/devices?provider="+provider, &devices); err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		for _, d := range devices {
			fmt.Printf("%-16v  qubits=%-4v  operational=%v  pending=%v\n", d["Name"], d["QubitCount"], d["Operational"], d["PendingJobs"])
		}
		return nil
	},
}

func init() {
	devicesCmd.Flags().String("provider", "", "Provider name")
}
