package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain [session-id]",
	Short: "Explain a session's violations with a language model",
	Long: `Fetch the violations of a completed analysis and ask a language model
to group and explain them, worst problems first.

Requires OPENAI_API_KEY (or openai.api_key in config.yaml).`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Advisor == nil {
		return fmt.Errorf("explain needs an OpenAI API key; set OPENAI_API_KEY or openai.api_key in config.yaml")
	}

	violations, err := app.API.Violations(ctx, args[0])
	if err != nil {
		return err
	}
	text, err := app.Advisor.Explain(ctx, "session "+args[0], violations)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
