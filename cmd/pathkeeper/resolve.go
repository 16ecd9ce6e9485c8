package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// resolutionResponse mirrors the server's resolve endpoint JSON.
type resolutionResponse struct {
	Kind       string        `json:"kind"`
	Path       *pathVersion  `json:"path,omitempty"`
	RedirectTo string        `json:"redirectTo,omitempty"`
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve a URL path against the path store",
		Long: `Resolve a URL path the way the public endpoint would: an active path
reports the owning entity, a retired path reports its redirect target,
anything else is a miss.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(args[0])
		},
	}
	return cmd
}

func runResolve(path string) error {
	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	body, err := globalClient.doRequest("GET",
		"/api/paths/v1alpha1/resolve?path="+url.QueryEscape(path), nil)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", path, err)
	}

	var res resolutionResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	headers := []string{"KIND", "TARGET", "ENTITY", "VERSION"}
	var rows [][]string
	switch res.Kind {
	case "found":
		rows = append(rows, []string{res.Kind, res.Path.FullPath,
			res.Path.EntityType + "/" + res.Path.EntityID,
			fmt.Sprintf("%d", res.Path.Version)})
	case "redirect":
		rows = append(rows, []string{res.Kind, res.RedirectTo, "", ""})
	default:
		rows = append(rows, []string{res.Kind, "", "", ""})
	}

	return printOutput(os.Stdout, format, res, headers, rows)
}
