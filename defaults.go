package stylewatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stylewatch/stylewatch/internal/api"
	"github.com/stylewatch/stylewatch/internal/config"
	"github.com/stylewatch/stylewatch/internal/explain"
	"github.com/stylewatch/stylewatch/internal/history"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	// Configuration.
	if b.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		b.config = cfg
	}
	cfg := b.config

	if cfg.Server == "" {
		cfg.Server = "http://localhost:8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "stylewatch.db")
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = filepath.Join(cfg.DataDir, "token")
	}

	// Ensure data dir exists.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// REST client. Always built: the account surface (auth, settings,
	// server-side history) goes through it even when the analysis backend
	// is replaced.
	if b.api == nil {
		opts := []api.Option{
			api.WithTokenSource(api.TokenFunc(cfg.BearerToken)),
		}
		if cfg.LogEndpoint != "" {
			opts = append(opts, api.WithLogEndpoint(cfg.LogEndpoint))
		}
		b.api = api.New(cfg.Server, opts...)
	}

	// Analysis backend and log source.
	if b.backend == nil {
		b.backend = b.api
		if b.streams == nil {
			b.streams = b.api
		}
	}

	// Local run history.
	if b.history == nil {
		st, err := history.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("initializing history: %w", err)
		}
		b.history = st
	}

	// Explanation advisor.
	if b.advisor == nil && cfg.ExplainEnabled() {
		b.advisor = explain.New(cfg.OpenAIKey, cfg.OpenAIModel)
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stylewatch"
	}
	return filepath.Join(home, ".stylewatch")
}
