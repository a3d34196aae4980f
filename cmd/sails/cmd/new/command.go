// Package new provides the command that scaffolds a new sails app.
package new

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/sails/internal/cmd/application"
	"github.com/agentstation/sails/internal/cmd/alerts"
	"github.com/agentstation/sails/internal/cmd/output"
	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/generator"
	"github.com/agentstation/sails/pkg/rc"
)

// NewCommand creates the new command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "new [path]",
		GroupID: "core",
		Short:   "Create a new sails app",
		Long: `Create a new sails app in the given directory.

Generator settings are read from the "generators" section of .sailsrc
files: /etc/sailsrc, ~/.sailsrc, the nearest .sailsrc above the working
directory and the file named by --rc. SAILS_GENERATORS__<KEY> environment
variables override them.`,
		Example: `  # Create an app in ./my-app
  sails new my-app

  # Store records in SQLite
  sails new my-app --adapter sqlite

  # Generate into a directory that already has files
  sails new . --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, app)
		},
	}

	cmd.Flags().String("rc", "", "additional rc file to read generator settings from")
	cmd.Flags().BoolP("force", "f", false, "generate even if the target directory is not empty")
	cmd.Flags().String("adapter", "", "adapter of the default connection (memory, sqlite, postgres, dynamodb)")

	return cmd
}

func run(cmd *cobra.Command, args []string, app application.Application) error {
	logger := app.Logger()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	rcFile, _ := cmd.Flags().GetString("rc")
	cfg, err := rc.Load(constants.FrameworkName, rc.Options{ConfigFile: rcFile, Cwd: cwd})
	if err != nil {
		return err
	}
	logger.Debug().Strs("files", cfg.Files()).Msg("Loaded rc configuration")

	scope, err := generator.NewScope(cwd, generator.PackageInfo{
		Name:    constants.FrameworkName,
		Version: constants.FrameworkVersion,
	}, cfg.Generators(), args)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("force") {
		scope.Force, _ = cmd.Flags().GetBool("force")
	}
	if cmd.Flags().Changed("adapter") {
		scope.Adapter, _ = cmd.Flags().GetString("adapter")
	}

	writer := alerts.NewWriter(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()))
	handlers := generator.LogHandlers(logger)
	logSuccess := handlers.Success
	handlers.Success = func(s generator.Scope) {
		logSuccess(s)
		_ = writer.Write(alerts.NewSuccess("Created a new Sails app `%s` at %s.", s.AppName, s.AppPath).
			WithDetails("cd "+s.AppPath, constants.FrameworkName+" lift"))
	}

	return generator.Generate(scope, handlers)
}
