package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// pathVersion mirrors the server's path version JSON.
type pathVersion struct {
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	FullPath   string     `json:"fullPath"`
	Group      *string    `json:"group,omitempty"`
	Version    int        `json:"version"`
	State      string     `json:"state"`
	RetiredAt  *time.Time `json:"retiredAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func newHistoryCmd() *cobra.Command {
	var includeRetired bool

	cmd := &cobra.Command{
		Use:   "history <entityType> <entityId>",
		Short: "Show an entity's path version history",
		Long: `Show the path versions recorded for an entity, oldest first. By default
only the active version is shown; --include-retired adds the retired
versions that still answer redirects.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(args[0], args[1], includeRetired)
		},
	}

	cmd.Flags().BoolVar(&includeRetired, "include-retired", false, "Include retired path versions")

	return cmd
}

func runHistory(entityType, entityID string, includeRetired bool) error {
	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/paths/v1alpha1/entities/%s/%s/history", entityType, entityID)
	if includeRetired {
		path += "?includeRetired=true"
	}

	body, err := globalClient.doRequest("GET", path, nil)
	if err != nil {
		return fmt.Errorf("fetching history for %s/%s: %w", entityType, entityID, err)
	}

	var resp struct {
		Versions []pathVersion `json:"versions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	headers := []string{"VERSION", "PATH", "STATE", "RETIRED AT"}
	rows := make([][]string, 0, len(resp.Versions))
	for _, v := range resp.Versions {
		retired := ""
		if v.RetiredAt != nil {
			retired = v.RetiredAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", v.Version), v.FullPath, v.State, retired,
		})
	}

	return printOutput(os.Stdout, format, resp, headers, rows)
}
