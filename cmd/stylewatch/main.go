// StyleWatch - checkstyle analysis from the terminal
//
// Submit a repository or a single Java file to a checkstyle analyzer
// backend and watch violations arrive live.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stylewatch/stylewatch"
	"github.com/stylewatch/stylewatch/internal/config"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "stylewatch",
	Short: "StyleWatch - checkstyle analysis from the terminal",
	Long: `StyleWatch submits Java code to a checkstyle analyzer backend and
streams progress until results arrive.

  stylewatch analyze https://github.com/acme/billing   Analyze a repository
  stylewatch check Main.java                           Check a single file
  stylewatch status <session-id>                       Check a running analysis
  stylewatch results <session-id>                      Fetch violations
  stylewatch history                                   List past runs
  stylewatch login <username>                          Authenticate`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Analyzer backend URL (overrides config and STYLEWATCH_SERVER)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp loads configuration, applies overrides, and assembles the client
// stack. Flag overrides run after the environment so the precedence is
// flag > environment > config file > default.
func newApp(mutate ...func(*config.Config)) (*stylewatch.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server = serverURL
	}
	for _, m := range mutate {
		m(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return stylewatch.NewBuilder().WithConfig(cfg).Build()
}

// signalContext returns a context canceled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
