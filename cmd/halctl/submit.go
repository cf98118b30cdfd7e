package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type submitRequest struct {
	Task               map[string]any `json:"task,omitempty"`
	SourceCode         string         `json:"source_code,omitempty"`
	Provider           string         `json:"provider"`
	Device             string         `json:"device"`
	Shots              int            `json:"shots"`
	Priority           string         `json:"priority,omitempty"`
	Strategy           string         `json:"strategy,omitempty"`
	QueueIfUnavailable bool           `json:"queue_if_unavailable,omitempty"`
	UserID             string         `json:"user_id,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job",
	Long:  "halctl submit --provider <name> --device <name> --shots <n>",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		device, _ := cmd.Flags().GetString("device")
		shots, _ := cmd.Flags().GetInt("shots")
		priority, _ := cmd.Flags().GetString("priority")
		strategy, _ := cmd.Flags().GetString("strategy")
		queueIfUnavailable, _ := cmd.Flags().GetBool("queue-if-unavailable")

		if provider == "" || device == "" {
			return fmt.Errorf("--provider and --device flags are required")
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var resp submitResponse
		req := submitRequest{
			Provider:           provider,
			Device:             device,
			Shots:              shots,
			Priority:           priority,
			Strategy:           strategy,
			QueueIfUnavailable: queueIfUnavailable,
			Task:               map[string]any{},
		}
		if err := client.post("/submit", req, &resp); err != nil {
			return fmt.Errorf("failed to submit job: %w", err)
		}

		fmt.Printf("✓ Job submitted successfully\n")
		fmt.Printf("  Job ID:   %s\n", resp.JobID)
		fmt.Printf("  Provider: %s\n", provider)
		fmt.Printf("  Device:   %s\n", device)
		return nil
	},
}

var submitCodeCmd = &cobra.Command{
	Use:   "submit-code [source-file]",
	Short: "Submit a source-code job",
	Long:  "halctl submit-code <source-file> --provider <name> --device <name> --shots <n>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		device, _ := cmd.Flags().GetString("device")
		shots, _ := cmd.Flags().GetInt("shots")

		if provider == "" || device == "" {
			return fmt.Errorf("--provider and --device flags are required")
		}

		source, err := readSourceFile(args[0])
		if err != nil {
			return err
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var resp submitResponse
		req := submitRequest{Provider: provider, Device: device, Shots: shots, SourceCode: source}
		if err := client.post("/submit_code", req, &resp); err != nil {
			return fmt.Errorf("failed to submit code job: %w", err)
		}

		fmt.Printf("✓ Code job submitted successfully\n")
		fmt.Printf("  Job ID: %s\n", resp.JobID)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, submitCodeCmd} {
		c.Flags().String("provider", "", "Provider name")
		c.Flags().String("device", "", "Device name")
		c.Flags().Int("shots", 1, "Shot count")
	}
	submitCmd.Flags().String("priority", "STANDARD", "Priority (STANDARD or HIGH)")
	submitCmd.Flags().String("strategy", "TIME", "Batching strategy (TIME or COST)")
	submitCmd.Flags().Bool("queue-if-unavailable", false, "Check device availability at admission and hold the job as QUEUED_UNAVAILABLE while the device is unavailable")
}
