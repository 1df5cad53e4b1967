package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View or change the account's analyzer settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the analyzer settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value [key=value...]",
	Short: "Change analyzer settings",
	Long: `Change one or more analyzer settings.

Keys:
  ruleset            Checkstyle ruleset name
  max-line-length    Maximum allowed line length
  check-compilation  Whether repository analyses also compile sources

Example:
  stylewatch settings set ruleset=google max-line-length=120`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.API.GetSettings(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ruleset:            %s\n", s.DefaultRuleset)
	fmt.Printf("max-line-length:    %d\n", s.MaxLineLength)
	fmt.Printf("check-compilation:  %t\n", s.CheckCompilation)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	// Read-modify-write: the backend replaces the whole settings object.
	s, err := app.API.GetSettings(ctx)
	if err != nil {
		return err
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", arg)
		}
		switch key {
		case "ruleset":
			s.DefaultRuleset = value
		case "max-line-length":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("max-line-length: %w", err)
			}
			s.MaxLineLength = n
		case "check-compilation":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("check-compilation: %w", err)
			}
			s.CheckCompilation = b
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	if err := app.API.UpdateSettings(ctx, s); err != nil {
		return err
	}
	fmt.Println("Settings updated.")
	return nil
}
