package app

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/sails/cmd/sails/cmd/lift"
	"github.com/agentstation/sails/cmd/sails/cmd/models"
	newcmd "github.com/agentstation/sails/cmd/sails/cmd/new"
	"github.com/agentstation/sails/internal/cmd/output"
)

// CreateNewCommand creates the new command with app dependencies.
func (a *App) CreateNewCommand() *cobra.Command {
	return newcmd.NewCommand(a)
}

// CreateLiftCommand creates the lift command with app dependencies.
func (a *App) CreateLiftCommand() *cobra.Command {
	return lift.NewCommand(a)
}

// CreateModelsCommand creates the models command with app dependencies.
func (a *App) CreateModelsCommand() *cobra.Command {
	return models.NewCommand(a)
}

// versionInfo is the structured form of the version command output.
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	BuiltBy   string `json:"built_by" yaml:"built_by"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// CreateVersionCommand creates the version command.
func (a *App) CreateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.config.Format == "" {
				cmd.Printf("sails %s\n", a.version)
				if a.config.Verbose {
					cmd.Printf("  commit:   %s\n", a.commit)
					cmd.Printf("  built:    %s\n", a.date)
					cmd.Printf("  built by: %s\n", a.builtBy)
				}
				return nil
			}

			format, err := output.ParseFormat(a.config.Format)
			if err != nil {
				return err
			}
			info := versionInfo{
				Version:   a.version,
				Commit:    a.commit,
				Date:      a.date,
				BuiltBy:   a.builtBy,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), info)
		},
	}
}
