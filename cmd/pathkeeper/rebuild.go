package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// rebuildJob mirrors the server's rebuild job JSON.
type rebuildJob struct {
	ID             string     `json:"id"`
	EntityType     string     `json:"entityType"`
	Filter         string     `json:"filter,omitempty"`
	State          string     `json:"state"`
	Message        string     `json:"message,omitempty"`
	RequestedAt    time.Time  `json:"requestedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	EntitiesSynced int        `json:"entitiesSynced"`
	PathsChanged   int        `json:"pathsChanged"`
	EntitiesFailed int        `json:"entitiesFailed"`
}

func newRebuildCmd() *cobra.Command {
	var (
		filter    string
		batchSize int
		wait      bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild <entityType>",
		Short: "Enqueue a bulk path rebuild for an entity type",
		Long: `Enqueue a bulk rebuild job that recomputes the canonical path of every
entity of the given type. The job runs in the background on the server;
use --wait to poll until it finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(args[0], filter, batchSize, wait)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Type-defined filter expression")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Entities per enumeration batch (0 = server default)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job reaches a terminal state")

	return cmd
}

func runRebuild(entityType, filter string, batchSize int, wait bool) error {
	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	reqBody, err := json.Marshal(map[string]any{
		"entityType": entityType,
		"filter":     filter,
		"batchSize":  batchSize,
	})
	if err != nil {
		return err
	}

	body, err := globalClient.doRequest("POST", "/api/paths/v1alpha1/rebuild", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("enqueuing rebuild: %w", err)
	}

	var job rebuildJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if wait {
		job, err = pollJob(job.ID)
		if err != nil {
			return err
		}
	}

	headers := []string{"JOB", "TYPE", "STATE", "SYNCED", "CHANGED", "FAILED"}
	rows := [][]string{{
		job.ID, job.EntityType, job.State,
		fmt.Sprintf("%d", job.EntitiesSynced),
		fmt.Sprintf("%d", job.PathsChanged),
		fmt.Sprintf("%d", job.EntitiesFailed),
	}}

	return printOutput(os.Stdout, format, job, headers, rows)
}

// pollJob polls the job API until the job reaches a terminal state.
func pollJob(jobID string) (rebuildJob, error) {
	var job rebuildJob
	for {
		body, err := globalClient.doRequest("GET", "/api/jobs/v1alpha1/rebuild/"+jobID, nil)
		if err != nil {
			return job, fmt.Errorf("polling job %s: %w", jobID, err)
		}
		if err := json.Unmarshal(body, &job); err != nil {
			return job, fmt.Errorf("parsing response: %w", err)
		}
		switch job.State {
		case "succeeded", "failed", "canceled":
			return job, nil
		}
		time.Sleep(time.Second)
	}
}
