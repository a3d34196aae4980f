// Package emoji provides symbol constants for CLI output.
package emoji

// Symbol constants used for status lines printed by commands.
const (
	// Success marks a completed operation.
	Success = "✓"

	// Error marks a failed operation.
	Error = "✗"

	// Stop marks a shutdown or stop signal.
	Stop = "✗"

	// Warning marks a non-critical issue.
	Warning = "!"

	// Sail marks a server that is up and listening.
	Sail = "⛵"
)
