package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type cancelRequest struct {
	JobID string `json:"job_id"`
}

type cancelResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a job",
	Long:  "halctl cancel <job-id>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var resp cancelResponse
		if err := client.post("/cancel", cancelRequest{JobID: jobID}, &resp); err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}

		fmt.Printf("✓ Job %s cancelled\n", resp.JobID)
		return nil
	},
}
