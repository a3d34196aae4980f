// Package lift provides the command that starts a sails app server.
package lift

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/sails/internal/cmd/application"
	"github.com/agentstation/sails/internal/cmd/alerts"
	"github.com/agentstation/sails/internal/cmd/output"
	"github.com/agentstation/sails/internal/server"
	"github.com/agentstation/sails/pkg/constants"
)

// NewCommand creates the lift command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lift",
		Aliases: []string{"up"},
		GroupID: "core",
		Short:   "Run the app in the current directory",
		Long: `Lift loads the models under api/models, creates the fixtures listed in
config/fixtures.yaml and serves the blueprint API.

Routes bound for each model:
  PUT|PATCH /:model/:id          update a record (blueprints.rest)
  GET /:model/update/:id?k=v     update a record (blueprints.shortcuts)

The same routes are available over the WebSocket at /socket, which also
receives change notifications for the records a socket has subscribed to.
Settings come from config/sails.yaml and SAILS_ environment variables;
flags below override them.`,
		Example: `  # Lift on the configured port
  sails lift

  # Lift under /api on port 8080
  sails lift --port 8080 --prefix /api

  # Disable shortcut routes
  sails lift --shortcuts=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app)
		},
	}

	cmd.Flags().Int("port", constants.DefaultPort, "Server port")
	cmd.Flags().String("host", constants.DefaultHost, "Bind address")
	cmd.Flags().String("prefix", "", "Blueprint route prefix")
	cmd.Flags().Bool("rest", true, "Bind RESTful blueprint routes")
	cmd.Flags().Bool("shortcuts", true, "Bind shortcut blueprint routes")
	cmd.Flags().Bool("jsonp", false, "Allow JSONP responses")
	cmd.Flags().Bool("pubsub", true, "Enable socket subscriptions and change notifications")
	cmd.Flags().Bool("cors", false, "Enable CORS")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")
	cmd.Flags().Bool("auth", false, "Enable API key authentication")
	cmd.Flags().Int("rate-limit", constants.DefaultRateLimit, "Requests per minute per IP (0 to disable)")
	cmd.Flags().Duration("read-timeout", constants.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", constants.WriteTimeout, "HTTP write timeout")
	cmd.Flags().Duration("idle-timeout", constants.IdleTimeout, "HTTP idle timeout")

	return cmd
}

func run(cmd *cobra.Command, app application.Application) error {
	cfg := parseConfig(cmd, app.ServerConfig())
	logger := app.Logger()

	registry, err := app.Registry(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.Blueprints.Prefix).
		Bool("rest", cfg.Blueprints.REST).
		Bool("shortcuts", cfg.Blueprints.Shortcuts).
		Bool("pubsub", cfg.PubSub).
		Int("models", registry.Len()).
		Msg("Lifting app")

	srv, err := server.New(registry, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Start()

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return fmt.Errorf("listening on %s: %w", httpServer.Addr, err)
	}

	writer := alerts.NewWriter(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()))
	return startWithGracefulShutdown(cmd.Context(), httpServer, listener, srv, writer, logger)
}

// parseConfig applies the flags the user set on top of the app settings.
func parseConfig(cmd *cobra.Command, cfg server.Config) server.Config {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = mustGetInt(cmd, "port")
	}
	if flags.Changed("host") {
		cfg.Host = mustGetString(cmd, "host")
	}
	if flags.Changed("prefix") {
		cfg.Blueprints.Prefix = mustGetString(cmd, "prefix")
	}
	if flags.Changed("rest") {
		cfg.Blueprints.REST = mustGetBool(cmd, "rest")
	}
	if flags.Changed("shortcuts") {
		cfg.Blueprints.Shortcuts = mustGetBool(cmd, "shortcuts")
	}
	if flags.Changed("jsonp") {
		cfg.Blueprints.JSONP = mustGetBool(cmd, "jsonp")
	}
	if flags.Changed("pubsub") {
		cfg.PubSub = mustGetBool(cmd, "pubsub")
	}
	if flags.Changed("cors") {
		cfg.CORSEnabled = mustGetBool(cmd, "cors")
	}
	if flags.Changed("cors-origins") {
		cfg.CORSOrigins = mustGetStringSlice(cmd, "cors-origins")
		cfg.CORSEnabled = true
	}
	if flags.Changed("auth") {
		cfg.AuthEnabled = mustGetBool(cmd, "auth")
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = mustGetInt(cmd, "rate-limit")
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = mustGetDuration(cmd, "read-timeout")
	}
	if flags.Changed("write-timeout") {
		cfg.WriteTimeout = mustGetDuration(cmd, "write-timeout")
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = mustGetDuration(cmd, "idle-timeout")
	}
	return cfg
}

// startWithGracefulShutdown serves until the command context is cancelled,
// then drains in-flight requests and stops the background services.
func startWithGracefulShutdown(ctx context.Context, httpServer *http.Server, listener net.Listener, srv *server.Server, writer *alerts.Writer, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	logger.Info().
		Str("addr", listener.Addr().String()).
		Msg("HTTP server listening")
	_ = writer.Write(alerts.NewInfo("App lifted on http://%s", listener.Addr()).WithDetails("Press Ctrl+C to stop"))

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received via context")
		_ = writer.Write(alerts.NewInfo("Lowering sails..."))

		// The parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}

		logger.Info().Msg("Server stopped gracefully")
		_ = writer.Write(alerts.NewSuccess("App stopped gracefully"))
		return nil
	}
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetStringSlice retrieves a string slice flag value or panics if the flag doesn't exist.
func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetDuration retrieves a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}
