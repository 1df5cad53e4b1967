package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Get the status of an analysis session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	rep, err := app.API.Status(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session:  %s\n", rep.ID)
	fmt.Printf("Status:   %s\n", statusIcon(rep.Status))
	if !rep.CreatedAt.IsZero() {
		fmt.Printf("Created:  %s\n", rep.CreatedAt.Format(time.RFC3339))
	}
	if rep.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", rep.ErrorMessage)
	}
	return nil
}
