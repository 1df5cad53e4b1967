// Package config provides configuration management for StyleWatch.
//
// Values resolve in three layers: built-in defaults, then the optional
// config.yaml in the data directory, then environment variables. Command
// line flags override all three and are applied by the commands themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the StyleWatch client.
type Config struct {
	// Server is the base URL of the analyzer backend.
	Server string

	// LogEndpoint is the websocket URL for real-time analysis logs.
	// Empty means derive it from Server.
	LogEndpoint string

	// DataDir is the directory for persistent data (SQLite DB, token, config).
	DataDir string

	// DatabasePath is the full path to the local history database.
	DatabasePath string

	// TokenPath is the full path to the saved bearer token.
	TokenPath string

	// PollInterval is the delay between status polls during an analysis.
	PollInterval time.Duration

	// CompletionMarker, when non-empty, overrides the log line prefix that
	// signals a finished analysis.
	CompletionMarker string

	// GitHubToken is the personal access token for repository preflight
	// lookups. Optional; anonymous lookups work for public repositories.
	GitHubToken string

	// Slack notifications (optional).
	// SlackBotToken is the Bot User OAuth Token (xoxb-...).
	SlackBotToken string
	// SlackChannel is the channel ID or name to post results to.
	SlackChannel string

	// Telegram notifications (optional).
	// TelegramBotToken is the token from @BotFather.
	TelegramBotToken string
	// TelegramChatID is the chat to post results to.
	TelegramChatID int64

	// Upload is the optional object-store target for JSON reports.
	Upload UploadConfig

	// OpenAIKey enables the explain command when set.
	OpenAIKey string
	// OpenAIModel is the chat model used for explanations.
	OpenAIModel string
}

// UploadConfig points at an S3-compatible object store.
type UploadConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// file mirrors config.yaml. Durations travel as strings so the file stays
// hand-editable ("5s", "1m30s").
type file struct {
	Server           string `yaml:"server"`
	LogEndpoint      string `yaml:"log_endpoint"`
	PollInterval     string `yaml:"poll_interval"`
	CompletionMarker string `yaml:"completion_marker"`
	GitHubToken      string `yaml:"github_token"`
	Slack            struct {
		BotToken string `yaml:"bot_token"`
		Channel  string `yaml:"channel"`
	} `yaml:"slack"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Upload UploadConfig `yaml:"upload"`
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
}

// Load builds a Config from defaults, the data-dir config file, and
// environment variables, in that order. The data directory itself comes from
// STYLEWATCH_DATA_DIR only, since the config file lives inside it.
func Load() (*Config, error) {
	dataDir := envOr("STYLEWATCH_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		Server:       "http://localhost:8080",
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "stylewatch.db"),
		TokenPath:    filepath.Join(dataDir, "token"),
		PollInterval: 2 * time.Second,
		OpenAIModel:  "gpt-4o-mini",
	}

	if err := cfg.applyFile(filepath.Join(dataDir, "config.yaml")); err != nil {
		return nil, err
	}

	cfg.Server = envOr("STYLEWATCH_SERVER", cfg.Server)
	cfg.LogEndpoint = envOr("STYLEWATCH_LOG_ENDPOINT", cfg.LogEndpoint)
	cfg.CompletionMarker = envOr("STYLEWATCH_COMPLETION_MARKER", cfg.CompletionMarker)
	cfg.GitHubToken = envOr("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.SlackBotToken = envOr("SLACK_BOT_TOKEN", cfg.SlackBotToken)
	cfg.SlackChannel = envOr("SLACK_CHANNEL", cfg.SlackChannel)
	cfg.TelegramBotToken = envOr("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.TelegramChatID = envOrInt64("TELEGRAM_CHAT_ID", cfg.TelegramChatID)
	cfg.OpenAIKey = envOr("OPENAI_API_KEY", cfg.OpenAIKey)
	cfg.OpenAIModel = envOr("STYLEWATCH_OPENAI_MODEL", cfg.OpenAIModel)
	if v := os.Getenv("STYLEWATCH_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing STYLEWATCH_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	return cfg, nil
}

// applyFile overlays config.yaml onto cfg. A missing file is not an error.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Server != "" {
		c.Server = f.Server
	}
	if f.LogEndpoint != "" {
		c.LogEndpoint = f.LogEndpoint
	}
	if f.PollInterval != "" {
		d, err := time.ParseDuration(f.PollInterval)
		if err != nil {
			return fmt.Errorf("parsing poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if f.CompletionMarker != "" {
		c.CompletionMarker = f.CompletionMarker
	}
	if f.GitHubToken != "" {
		c.GitHubToken = f.GitHubToken
	}
	if f.Slack.BotToken != "" {
		c.SlackBotToken = f.Slack.BotToken
	}
	if f.Slack.Channel != "" {
		c.SlackChannel = f.Slack.Channel
	}
	if f.Telegram.BotToken != "" {
		c.TelegramBotToken = f.Telegram.BotToken
	}
	if f.Telegram.ChatID != 0 {
		c.TelegramChatID = f.Telegram.ChatID
	}
	if f.Upload.Endpoint != "" {
		c.Upload = f.Upload
	}
	if f.OpenAI.APIKey != "" {
		c.OpenAIKey = f.OpenAI.APIKey
	}
	if f.OpenAI.Model != "" {
		c.OpenAIModel = f.OpenAI.Model
	}
	return nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("server URL must start with http:// or https://, got %q", c.Server)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// TelegramEnabled returns true if Telegram notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// UploadEnabled returns true if a report upload target is configured.
func (c *Config) UploadEnabled() bool {
	return c.Upload.Endpoint != "" && c.Upload.Bucket != ""
}

// ExplainEnabled returns true if the explain command can run.
func (c *Config) ExplainEnabled() bool {
	return c.OpenAIKey != ""
}

// --- Bearer token ---

// ReadToken loads the saved bearer token. A missing file means the user is
// logged out and returns "" with no error.
func (c *Config) ReadToken() (string, error) {
	data, err := os.ReadFile(c.TokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveToken persists the bearer token, readable only by the current user.
func (c *Config) SaveToken(token string) error {
	if err := os.WriteFile(c.TokenPath, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// ClearToken removes the saved bearer token. Clearing an absent token is
// not an error.
func (c *Config) ClearToken() error {
	if err := os.Remove(c.TokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// BearerToken reads the saved token, swallowing errors. It backs the
// client's TokenSource, where a broken token file should degrade to
// anonymous requests rather than fail the call.
func (c *Config) BearerToken() string {
	tok, _ := c.ReadToken()
	return tok
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stylewatch"
	}
	return filepath.Join(home, ".stylewatch")
}
