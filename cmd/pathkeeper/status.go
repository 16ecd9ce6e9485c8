package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// healthResponse mirrors the server's health endpoint response.
type healthResponse struct {
	Status string `json:"status"`
}

func newStatusCmd() *cobra.Command {
	var jobs bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pathkeeper server status",
		Long: `Show the health and readiness of the pathkeeper server. With --jobs,
also lists the most recent rebuild jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runServerStatus(); err != nil {
				return err
			}
			if jobs {
				return runJobList()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jobs, "jobs", false, "Also list recent rebuild jobs")

	return cmd
}

func runServerStatus() error {
	healthBody, err := globalClient.doRequest("GET", "/healthz", nil)
	if err != nil {
		return fmt.Errorf("checking server health: %w", err)
	}
	var health healthResponse
	if err := json.Unmarshal(healthBody, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	readyBody, err := globalClient.doRequest("GET", "/readyz", nil)
	if err != nil {
		return fmt.Errorf("checking server readiness: %w", err)
	}
	var ready healthResponse
	if err := json.Unmarshal(readyBody, &ready); err != nil {
		return fmt.Errorf("parsing readiness response: %w", err)
	}

	fmt.Printf("Server:    %s\n", globalClient.baseURL)
	fmt.Printf("Health:    %s\n", health.Status)
	fmt.Printf("Readiness: %s\n", ready.Status)
	return nil
}

func runJobList() error {
	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	body, err := globalClient.doRequest("GET", "/api/jobs/v1alpha1/rebuild?pageSize=10", nil)
	if err != nil {
		return fmt.Errorf("listing rebuild jobs: %w", err)
	}

	var resp struct {
		Jobs []rebuildJob `json:"jobs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Println()
	headers := []string{"JOB", "TYPE", "STATE", "REQUESTED", "MESSAGE"}
	rows := make([][]string, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		rows = append(rows, []string{
			j.ID, j.EntityType, j.State,
			j.RequestedAt.Format("2006-01-02 15:04:05"), j.Message,
		})
	}

	return printOutput(os.Stdout, format, resp, headers, rows)
}
