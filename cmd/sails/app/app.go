// Package app provides the application context and dependency management
// for the sails CLI. It centralizes configuration, logging and the lazily
// loaded model registry shared by every command.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/cmd/application"
	"github.com/agentstation/sails/internal/cmd/output"
	"github.com/agentstation/sails/internal/server"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
	"github.com/agentstation/sails/pkg/orm"

	// Datastore adapters available to connections.
	_ "github.com/agentstation/sails/pkg/datastore/dynamo"
	_ "github.com/agentstation/sails/pkg/datastore/memory"
	_ "github.com/agentstation/sails/pkg/datastore/sqlstore"
)

var _ application.Application = (*App)(nil)

// App represents the sails application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Registry and its connections (lazy-initialized, singleton)
	mu       sync.RWMutex
	registry *orm.Registry
	conns    *datastore.Connections
}

// New creates a new App instance with the given version information.
// Configuration is read from the working directory and can be replaced
// using functional options.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("", "")
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

// OutputFormat returns the output format requested by flag, or the one
// suited to the terminal.
func (a *App) OutputFormat() string {
	return string(output.DetectFormat(a.config.Format))
}

// ServerConfig returns the server settings from the app configuration.
func (a *App) ServerConfig() server.Config {
	return a.config.ServerConfig()
}

// Registry returns the model registry, loading model definitions and
// fixtures the first time it is called. It is safe for concurrent use.
func (a *App) Registry(ctx context.Context) (*orm.Registry, error) {
	a.mu.RLock()
	if a.registry != nil {
		r := a.registry
		a.mu.RUnlock()
		return r, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.registry != nil {
		return a.registry, nil
	}

	conns := datastore.NewConnections(a.config.Connections)
	registry := orm.NewRegistry()

	modelsPath := a.config.resolve(a.config.Models.Path)
	if err := registry.LoadDir(ctx, modelsPath, conns.Get); err != nil {
		_ = conns.Close()
		return nil, errors.WrapResource("load", "models", modelsPath, err)
	}
	if err := registry.Check(); err != nil {
		a.logger.Warn().Err(err).Msg("Model associations reference unknown models")
	}

	fixtures := a.config.resolve(a.config.Models.Fixtures)
	created, err := registry.LoadFixtures(ctx, fixtures)
	if err != nil {
		_ = conns.Close()
		return nil, errors.WrapResource("load", "fixtures", fixtures, err)
	}

	a.logger.Debug().
		Int("models", registry.Len()).
		Int("fixtures", created).
		Str("path", modelsPath).
		Msg("Loaded models")

	a.registry = registry
	a.conns = conns
	return registry, nil
}

// Shutdown closes any datastore connections opened by the registry.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	conns := a.conns
	a.conns = nil
	a.mu.Unlock()

	if conns == nil {
		return nil
	}
	if err := conns.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close datastore connections during shutdown")
		return err
	}
	return nil
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

// WithRegistry sets a preloaded model registry (useful for testing).
func WithRegistry(registry *orm.Registry) Option {
	return func(a *App) error {
		a.registry = registry
		return nil
	}
}
