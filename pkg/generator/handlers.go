package generator

import (
	"github.com/rs/zerolog"
)

// LogHandlers reports generator outcomes through logger.
func LogHandlers(logger *zerolog.Logger) Handlers {
	return Handlers{
		Error: func(err error) {
			logger.Error().Err(err).Msg("Could not create a new Sails app")
		},
		Success: func(scope Scope) {
			logger.Info().
				Str("app", scope.AppName).
				Str("path", scope.AppPath).
				Msgf("Created a new Sails app `%s` at %s.", scope.AppName, scope.AppPath)
		},
		MissingAppName: func() {
			logger.Error().Msg("Please specify the name of the new app, e.g. `sails new my-app`.")
		},
	}
}
