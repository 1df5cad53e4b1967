package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stylewatch/stylewatch/internal/report"
)

var (
	resultsFilter string
	resultsJSON   bool
)

var resultsCmd = &cobra.Command{
	Use:   "results [session-id]",
	Short: "Fetch the violations of a completed analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsFilter, "filter", "", "Only show violations whose file path matches this glob")
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "Print raw JSON instead of a table")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	violations, err := app.API.Violations(ctx, args[0])
	if err != nil {
		return err
	}
	violations = report.Filter(violations, resultsFilter)

	if resultsJSON {
		data, err := json.MarshalIndent(violations, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding violations: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printViolations(violations)
	return nil
}
