// Package models provides the command that lists an app's models.
package models

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/sails/internal/cmd/application"
	"github.com/agentstation/sails/internal/cmd/output"
	"github.com/agentstation/sails/pkg/errors"
)

// NewCommand creates the models command using app context.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "models [identity...]",
		Aliases: []string{"model", "ls"},
		GroupID: "management",
		Short:   "List the models of the app",
		Long: `List the models loaded from api/models with their connection, adapter,
attributes and associations. Name identities to show only those models.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := app.Registry(cmd.Context())
			if err != nil {
				return err
			}

			all := registry.List()
			if len(args) > 0 {
				all = all[:0:0]
				for _, identity := range args {
					m, ok := registry.Get(identity)
					if !ok {
						return errors.NewNotFoundError("model", identity)
					}
					all = append(all, m)
				}
			}

			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			return output.FormatModels(cmd.OutOrStdout(), all, format)
		},
	}
}
