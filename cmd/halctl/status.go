package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type statusResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Get a job's current status",
	Long:  "halctl status <job-id>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var resp statusResponse
		if err := client.get("/status?job_id="+url.QueryEscape(jobID), &resp); err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		fmt.Printf("Job ID:  %s\n", resp.JobID)
		fmt.Printf("Status:  %s\n", resp.Status)
		return nil
	},
}
