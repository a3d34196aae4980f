// Package constants provides shared constants used throughout the sails codebase.
// This includes timeouts, limits, file permissions, and default locations
// that should be consistent across the application.
package constants

import "time"

// Framework identity reported to generators and the version command.
const (
	// FrameworkName is the package name of the framework
	FrameworkName = "sails"

	// FrameworkVersion is the framework version written into new apps
	FrameworkVersion = "0.10.0"
)

// Timeout constants define various timeout durations used in the application
const (
	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// ReadTimeout bounds reading an HTTP request
	ReadTimeout = 10 * time.Second

	// WriteTimeout bounds writing an HTTP response
	WriteTimeout = 10 * time.Second

	// IdleTimeout bounds keep-alive connections
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is how long the server waits for in-flight requests
	ShutdownTimeout = 10 * time.Second

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute

	// DialTimeout is the timeout for establishing datastore connections
	DialTimeout = 10 * time.Second
)

// WebSocket constants
const (
	// WriteWait is the time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong message from the peer
	PongWait = 60 * time.Second

	// PingPeriod sends pings to peer with this period. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the maximum inbound frame size in bytes
	MaxMessageSize = 64 * 1024

	// SSEHeartbeatInterval keeps idle event streams open through proxies
	SSEHeartbeatInterval = 30 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like local databases (rw-------)
	SecureFilePermissions = 0600
)

// Limit constants define various limits and capacities
const (
	// ChannelBufferSize is the default buffer size for channels
	ChannelBufferSize = 256

	// MaxRequestBodySize is the largest request body the server will parse
	MaxRequestBodySize = 1 << 20

	// MaxIdentityLength is the maximum allowed length for model identities
	MaxIdentityLength = 128
)

// Rate limiting constants
const (
	// DefaultRateLimit is the default requests per minute per client
	DefaultRateLimit = 100

	// RateLimitWindow is the window a client's request count covers
	RateLimitWindow = time.Minute

	// CacheCleanupInterval is how often to clean expired rate limit entries
	CacheCleanupInterval = 5 * time.Minute
)

// Default values
const (
	// DefaultHost is the interface the server binds to
	DefaultHost = "localhost"

	// DefaultPort is the port the server listens on
	DefaultPort = 1337

	// DefaultAdapter is the datastore adapter used when none is configured
	DefaultAdapter = "memory"

	// DefaultConnection is the name of the connection models use by default
	DefaultConnection = "default"

	// DefaultEnvironment is the default environment (development, production)
	DefaultEnvironment = "development"
)

// Path constants
const (
	// RcFileName is the name of the rc file searched for in parent directories
	RcFileName = ".sailsrc"

	// DefaultConfigPath is the app configuration file relative to the app root
	DefaultConfigPath = "config/sails.yaml"

	// DefaultModelsPath is the directory holding model definitions
	DefaultModelsPath = "api/models"

	// DefaultFixturesPath is the file holding bootstrap records
	DefaultFixturesPath = "config/fixtures.yaml"

	// SocketPath is the route that upgrades to a WebSocket
	SocketPath = "/socket"

	// EventsPath is the route serving server-sent events
	EventsPath = "/__events"
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatLog is the format used in log files
	TimeFormatLog = "2006-01-02 15:04:05.000"
)
