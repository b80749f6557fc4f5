// Package app provides the application context and dependency management
// for the factmap CLI. It centralizes configuration, logging, the factmap
// instance and the metrics endpoint, and owns their lifecycle.
package app

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/factmap"
	"github.com/agentstation/factmap/internal/metrics"
	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
)

// App represents the factmap application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	out    io.Writer

	mu      sync.Mutex
	factmap factmap.Factmap
	others  []factmap.Factmap

	collector *metrics.Collector
	server    *http.Server
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Factmap returns the factmap instance built from the configuration,
// creating it on first use.
func (a *App) Factmap() (factmap.Factmap, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.factmap != nil {
		return a.factmap, nil
	}
	fm, err := a.build()
	if err != nil {
		return nil, err
	}
	a.factmap = fm
	return fm, nil
}

// FactmapWithOptions returns a new factmap instance with extra options
// applied after the configured ones. The app closes it on shutdown.
func (a *App) FactmapWithOptions(opts ...factmap.Option) (factmap.Factmap, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fm, err := a.build(opts...)
	if err != nil {
		return nil, err
	}
	a.others = append(a.others, fm)
	return fm, nil
}

// build must be called with a.mu held.
func (a *App) build(extra ...factmap.Option) (factmap.Factmap, error) {
	opts := a.config.FactmapOptions()
	opts = append(opts, factmap.WithUserAgent(constants.AppName+"/"+a.version))

	if a.config.MetricsAddr != "" {
		a.serveMetrics()
		opts = append(opts, factmap.WithMetrics(a.collector))
	}

	fm, err := factmap.New(append(opts, extra...)...)
	if err != nil {
		return nil, errors.WrapResource("create", "factmap", "", err)
	}
	fm.OnAborted(func(recordID string, err error) {
		a.logger.Error().Err(err).Str("record", recordID).Msg("Record aborted")
	})
	return fm, nil
}

// Shutdown closes open stores and stops the metrics server.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, fm := range append([]factmap.Factmap{a.factmap}, a.others...) {
		if fm == nil {
			continue
		}
		if err := fm.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.factmap, a.others = nil, nil

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.server = nil
	}
	return errors.Join(errs...)
}

// serveMetrics starts the metrics endpoint once. Must be called with a.mu held.
func (a *App) serveMetrics() {
	if a.server != nil {
		return
	}
	a.collector = metrics.NewCollector()

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())
	a.server = &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := a.server
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Str("addr", server.Addr).Msg("Metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", server.Addr).Msg("Serving metrics")
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithFactmap sets a prebuilt factmap instance (useful for testing).
func WithFactmap(fm factmap.Factmap) Option {
	return func(a *App) error {
		a.factmap = fm
		return nil
	}
}

// WithOutput sets where command output is written (default stdout).
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}
