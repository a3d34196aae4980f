package app

import (
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"

	"github.com/agentstation/sails/pkg/logging"
)

// NewLogger creates a configured logger based on the application configuration.
// Log level precedence (highest to lowest):
//  1. --log-level flag
//  2. -v/--verbose flag (shortcut for debug)
//  3. -q/--quiet flag (shortcut for warn)
//  4. log.level in config or SAILS_LOG_LEVEL
//  5. Default (info)
func NewLogger(config *Config) zerolog.Logger {
	level := determineLogLevel(config)

	logConfig := config.Log
	logConfig.Level = level
	logConfig.NoColor = logConfig.NoColor || config.NoColor || os.Getenv("NO_COLOR") != ""
	logConfig.Caller = logConfig.Caller || level == "debug" || level == "trace"

	return logging.New(logConfig)
}

// determineLogLevel determines the log level using the precedence rules above.
// An explicit level set by flag is already stored in config.Log.Level, so
// verbose and quiet only apply when no level was named.
func determineLogLevel(config *Config) string {
	if config.Log.Level != "" {
		validated := validateLogLevel(config.Log.Level)
		if validated != config.Log.Level {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", config.Log.Level, validated)
		}
		return validated
	}

	if config.Verbose && config.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	}
	if config.Verbose {
		return "debug"
	}
	if config.Quiet {
		return "warn"
	}
	return "info"
}

// validateLogLevel returns level when it is known and "info" otherwise.
func validateLogLevel(level string) string {
	if slices.Contains([]string{"trace", "debug", "info", "warn", "error"}, level) {
		return level
	}
	return "info"
}
