// Package stylewatch is the top-level entry point for the StyleWatch client.
//
// Use the Builder to compose an application:
//
//	app, err := stylewatch.NewBuilder().Build()
//
// Or replace components, for embedding or tests:
//
//	app, err := stylewatch.NewBuilder().
//	    WithConfig(cfg).
//	    WithBackend(myBackend).
//	    Build()
package stylewatch

import (
	"context"
	"errors"
	"log"

	"github.com/stylewatch/stylewatch/internal/analysis"
	"github.com/stylewatch/stylewatch/internal/api"
	"github.com/stylewatch/stylewatch/internal/config"
	"github.com/stylewatch/stylewatch/internal/explain"
	"github.com/stylewatch/stylewatch/internal/github"
	"github.com/stylewatch/stylewatch/internal/history"
	"github.com/stylewatch/stylewatch/internal/notify"
	"github.com/stylewatch/stylewatch/internal/report"
)

// Builder constructs a StyleWatch App.
type Builder struct {
	config    *config.Config
	api       *api.Client
	backend   analysis.Backend
	streams   analysis.LogStreamer
	history   *history.Store
	notifiers []notify.Notifier
	uploader  *report.Uploader
	advisor   *explain.Advisor
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration. When omitted, Build loads
// it from the config file and environment.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.config = cfg
	return b
}

// WithBackend sets the analysis backend the session drives. Defaults to the
// REST client for the configured server.
func (b *Builder) WithBackend(backend analysis.Backend) *Builder {
	b.backend = backend
	return b
}

// WithLogStreamer sets the real-time log source. Defaults to the REST
// client's websocket channel when the backend is also defaulted; a custom
// backend gets no log streamer unless one is set here.
func (b *Builder) WithLogStreamer(streams analysis.LogStreamer) *Builder {
	b.streams = streams
	return b
}

// WithHistory sets the local run store.
func (b *Builder) WithHistory(h *history.Store) *Builder {
	b.history = h
	return b
}

// WithNotifier adds a notification target, replacing the config-derived set.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifiers = append(b.notifiers, n)
	return b
}

// WithUploader sets the report upload target.
func (b *Builder) WithUploader(u *report.Uploader) *Builder {
	b.uploader = u
	return b
}

// WithAdvisor sets the explanation advisor.
func (b *Builder) WithAdvisor(a *explain.Advisor) *Builder {
	b.advisor = a
	return b
}

// Build creates the App. Missing components are filled from configuration.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	var opts []analysis.Option
	if b.config.PollInterval > 0 {
		opts = append(opts, analysis.WithPollInterval(b.config.PollInterval))
	}
	if b.config.CompletionMarker != "" {
		opts = append(opts, analysis.WithCompletionMarker(b.config.CompletionMarker))
	}

	return &App{
		Config:    b.config,
		API:       b.api,
		Session:   analysis.NewSession(b.backend, b.streams, opts...),
		History:   b.history,
		Preflight: github.NewClient(b.config.GitHubToken),
		Advisor:   b.advisor,
		notifiers: b.notifiers,
		uploader:  b.uploader,
	}, nil
}

// App is an assembled StyleWatch client.
type App struct {
	Config    *config.Config
	API       *api.Client
	Session   *analysis.Session
	History   *history.Store
	Preflight *github.Client
	Advisor   *explain.Advisor

	notifiers []notify.Notifier
	uploader  *report.Uploader
}

// Notifiers returns the notification targets. Constructing the Telegram
// notifier validates its token over the network, so the config-derived set
// is built here rather than in Build, by the commands that actually notify.
func (a *App) Notifiers() []notify.Notifier {
	if a.notifiers != nil {
		return a.notifiers
	}
	var ns []notify.Notifier
	if a.Config.SlackEnabled() {
		ns = append(ns, notify.NewSlack(a.Config.SlackBotToken, a.Config.SlackChannel))
	}
	if a.Config.TelegramEnabled() {
		tg, err := notify.NewTelegram(a.Config.TelegramBotToken, a.Config.TelegramChatID)
		if err != nil {
			log.Printf("telegram: %v", err)
		} else {
			ns = append(ns, tg)
		}
	}
	a.notifiers = ns
	return ns
}

// ReportUploader returns the report upload target, connecting on first use.
func (a *App) ReportUploader(ctx context.Context) (*report.Uploader, error) {
	if a.uploader != nil {
		return a.uploader, nil
	}
	if !a.Config.UploadEnabled() {
		return nil, errors.New("report upload is not configured")
	}
	up := a.Config.Upload
	u, err := report.NewUploader(ctx, up.Endpoint, up.Region, up.Bucket, up.AccessKey, up.SecretKey, up.UseSSL)
	if err != nil {
		return nil, err
	}
	a.uploader = u
	return u, nil
}

// Close releases the app's local resources. The session, if one is running,
// is reset first so its goroutines stop before the history store closes.
func (a *App) Close() error {
	a.Session.Reset()
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}
