package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

type resultResponse struct {
	JobID  string `json:"job_id"`
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
	Result any    `json:"result,omitempty"`
}

var resultCmd = &cobra.Command{
	Use:   "result [job-id]",
	Short: "Fetch a job's result",
	Long:  "halctl result <job-id>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var resp resultResponse
		if err := client.get("/result?job_id="+url.QueryEscape(jobID), &resp); err != nil {
			return fmt.Errorf("failed to get result: %w", err)
		}

		if !resp.Ready {
			fmt.Printf("Job %s has no result yet: %s\n", resp.JobID, resp.Reason)
			return nil
		}

		b, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}
