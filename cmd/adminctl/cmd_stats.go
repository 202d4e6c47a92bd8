package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masivos/admin-gateway/internal/dashboard"
	"github.com/masivos/admin-gateway/internal/preview"
)

var (
	statsUserID string

	previewSubject string
	previewHTML    string
	previewText    string
	previewVars    []string
	previewData    string
)

// statsCmd prints the merged dashboard statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the dashboard statistics",
	Long: `Fetches contact, campaign, template and email statistics in parallel.
Unavailable services are replaced with fallback values and listed under
"fallbacks".`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

// previewCmd renders a template locally
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a template with sample data",
	Long: `Renders a subject and an HTML file with the sample preview data.
Declared variables without a value render as [name].`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	statsCmd.Flags().StringVar(&statsUserID, "user", "", "Owner of the statistics (default from config)")

	previewCmd.Flags().StringVar(&previewSubject, "subject", "", "Subject template")
	previewCmd.Flags().StringVar(&previewHTML, "html", "", "HTML template file")
	previewCmd.Flags().StringVar(&previewText, "text", "", "Text template file")
	previewCmd.Flags().StringSliceVar(&previewVars, "var", nil, "Declared variable (repeatable)")
	previewCmd.Flags().StringVar(&previewData, "data", "", "JSON file with preview values")
	_ = previewCmd.MarkFlagRequired("html")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel, cfg, client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	userID := statsUserID
	if userID == "" {
		userID = cfg.Dashboard.UserID
	}
	stats := dashboard.NewService(client, userID).Stats(ctx)
	if len(stats.Fallbacks) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: fallback values for %s\n", strings.Join(stats.Fallbacks, ", "))
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runPreview(cmd *cobra.Command, args []string) error {
	in := preview.Input{Subject: previewSubject, Variables: previewVars}

	html, err := os.ReadFile(previewHTML)
	if err != nil {
		return err
	}
	in.HTMLContent = string(html)
	if previewText != "" {
		text, err := os.ReadFile(previewText)
		if err != nil {
			return err
		}
		in.TextContent = string(text)
	}

	var data map[string]any
	if previewData != "" {
		raw, err := os.ReadFile(previewData)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing %s: %w", previewData, err)
		}
	}

	res, err := preview.NewRenderer().Preview(in, data)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}
