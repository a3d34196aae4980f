package server

import (
	"strings"
	"time"

	"github.com/agentstation/sails/pkg/constants"
)

// BlueprintConfig controls which blueprint routes are bound for each model.
type BlueprintConfig struct {
	// Prefix is prepended to every blueprint route, e.g. "/api".
	Prefix string `mapstructure:"prefix"`
	// REST binds PUT and PATCH /:model/:id.
	REST bool `mapstructure:"rest"`
	// Shortcuts binds GET /:model/update/:id.
	Shortcuts bool `mapstructure:"shortcuts"`
	// JSONP lets responses be wrapped in the "callback" parameter.
	JSONP bool `mapstructure:"jsonp"`
}

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	Blueprints BlueprintConfig

	// PubSub enables instance rooms and change notifications.
	PubSub bool

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string
	JWTSecret   string
	JWTIssuer   string

	// RateLimit is requests per minute per IP (0 to disable)
	RateLimit int

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host: constants.DefaultHost,
		Port: constants.DefaultPort,
		Blueprints: BlueprintConfig{
			REST:      true,
			Shortcuts: true,
		},
		PubSub:       true,
		CORSOrigins:  []string{},
		AuthHeader:   "X-API-Key",
		RateLimit:    constants.DefaultRateLimit,
		ReadTimeout:  constants.ReadTimeout,
		WriteTimeout: constants.WriteTimeout,
		IdleTimeout:  constants.IdleTimeout,
	}
}

// prefix normalizes the blueprint prefix to "" or "/segment" form.
func (c BlueprintConfig) prefix() string {
	p := strings.Trim(strings.TrimSpace(c.Prefix), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
