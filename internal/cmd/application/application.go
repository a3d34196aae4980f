// Package application defines the contract between the sails CLI's App and
// its commands, so commands can be tested against a Mock.
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, _ []string) error {
//	            registry, err := app.Registry(cmd.Context())
//	            if err != nil {
//	                return err
//	            }
//	            // ... use registry
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/server"
	"github.com/agentstation/sails/pkg/orm"
)

// Application provides what commands need from the running app.
// All methods must be safe for concurrent use.
type Application interface {
	// Registry returns the model registry, loading model definitions and
	// fixtures on first use.
	Registry(ctx context.Context) (*orm.Registry, error)

	// ServerConfig returns the server settings from config/sails.yaml and
	// the environment. Command flags are applied on top by the caller.
	ServerConfig() server.Config

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
