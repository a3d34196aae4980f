package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/sails/internal/server"
	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
	"github.com/agentstation/sails/pkg/logging"
)

// Config holds the application configuration loaded from config/sails.yaml,
// SAILS_ prefixed environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool   `mapstructure:"-"`
	Quiet   bool   `mapstructure:"-"`
	NoColor bool   `mapstructure:"-"`
	Format  string `mapstructure:"-"`

	// AppPath is the root of the app the command runs in.
	AppPath string `mapstructure:"-"`
	// ConfigFile is the configuration file that was read, if any.
	ConfigFile string `mapstructure:"-"`

	Environment string                                `mapstructure:"environment"`
	Host        string                                `mapstructure:"host"`
	Port        int                                   `mapstructure:"port"`
	Models      ModelsConfig                          `mapstructure:"models"`
	Connections map[string]datastore.ConnectionConfig `mapstructure:"connections"`
	Blueprints  server.BlueprintConfig                `mapstructure:"blueprints"`
	Hooks       HooksConfig                           `mapstructure:"hooks"`
	Security    SecurityConfig                        `mapstructure:"security"`
	HTTP        HTTPConfig                            `mapstructure:"http"`
	Log         logging.Config                        `mapstructure:"log"`
}

// ModelsConfig locates model definitions and bootstrap records.
type ModelsConfig struct {
	Path     string `mapstructure:"path"`
	Fixtures string `mapstructure:"fixtures"`
}

// HooksConfig toggles optional framework features.
type HooksConfig struct {
	PubSub bool `mapstructure:"pubsub"`
}

// SecurityConfig holds CORS, authentication and rate limiting settings.
type SecurityConfig struct {
	CORS struct {
		Enabled bool     `mapstructure:"enabled"`
		Origins []string `mapstructure:"origins"`
	} `mapstructure:"cors"`
	Auth struct {
		Enabled   bool   `mapstructure:"enabled"`
		Header    string `mapstructure:"header"`
		APIKey    string `mapstructure:"api_key"`
		JWTSecret string `mapstructure:"jwt_secret"`
		JWTIssuer string `mapstructure:"jwt_issuer"`
	} `mapstructure:"auth"`
	RateLimit int `mapstructure:"rate_limit"`
}

// HTTPConfig holds HTTP server timeouts.
type HTTPConfig struct {
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoadConfig loads configuration for the app rooted at appPath, in order of
// precedence:
//  1. Command-line flags (handled by cobra)
//  2. SAILS_ environment variables, e.g. SAILS_BLUEPRINTS_PREFIX
//  3. .env and .env.local in the app root
//  4. The config file (configFile, or config/sails.yaml)
//  5. Defaults
func LoadConfig(appPath, configFile string) (*Config, error) {
	if appPath == "" {
		appPath, _ = os.Getwd()
	}

	loadEnvFiles(appPath)

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SAILS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	required := configFile != ""
	if configFile == "" {
		configFile = filepath.Join(appPath, constants.DefaultConfigPath)
	} else if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(appPath, configFile)
	}
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapParse("yaml", configFile, err)
		}
	} else if required {
		return nil, errors.WrapIO("read", configFile, err)
	}

	config := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(config, hook); err != nil {
		return nil, errors.NewConfigError("config", "invalid configuration", err)
	}

	config.AppPath = appPath
	config.ConfigFile = v.ConfigFileUsed()

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", constants.DefaultEnvironment)
	v.SetDefault("host", constants.DefaultHost)
	v.SetDefault("port", constants.DefaultPort)
	v.SetDefault("models.path", constants.DefaultModelsPath)
	v.SetDefault("models.fixtures", constants.DefaultFixturesPath)
	v.SetDefault("connections."+constants.DefaultConnection+".adapter", constants.DefaultAdapter)
	v.SetDefault("blueprints.prefix", "")
	v.SetDefault("blueprints.rest", true)
	v.SetDefault("blueprints.shortcuts", true)
	v.SetDefault("blueprints.jsonp", false)
	v.SetDefault("hooks.pubsub", true)
	v.SetDefault("security.cors.enabled", false)
	v.SetDefault("security.cors.origins", []string{})
	v.SetDefault("security.auth.enabled", false)
	v.SetDefault("security.auth.header", "X-API-Key")
	v.SetDefault("security.auth.api_key", "")
	v.SetDefault("security.auth.jwt_secret", "")
	v.SetDefault("security.auth.jwt_issuer", "")
	v.SetDefault("security.rate_limit", constants.DefaultRateLimit)
	v.SetDefault("http.read_timeout", constants.ReadTimeout)
	v.SetDefault("http.write_timeout", constants.WriteTimeout)
	v.SetDefault("http.idle_timeout", constants.IdleTimeout)
	v.SetDefault("log.level", "")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.no_color", false)
	v.SetDefault("log.caller", false)
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
}

// ServerConfig converts the configuration into server settings.
func (c *Config) ServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Blueprints = c.Blueprints
	cfg.PubSub = c.Hooks.PubSub
	cfg.CORSEnabled = c.Security.CORS.Enabled
	cfg.CORSOrigins = c.Security.CORS.Origins
	cfg.AuthEnabled = c.Security.Auth.Enabled
	cfg.AuthHeader = c.Security.Auth.Header
	cfg.APIKey = c.Security.Auth.APIKey
	cfg.JWTSecret = c.Security.Auth.JWTSecret
	cfg.JWTIssuer = c.Security.Auth.JWTIssuer
	cfg.RateLimit = c.Security.RateLimit
	cfg.ReadTimeout = c.HTTP.ReadTimeout
	cfg.WriteTimeout = c.HTTP.WriteTimeout
	cfg.IdleTimeout = c.HTTP.IdleTimeout
	return cfg
}

// resolve makes a configured path absolute against the app root.
func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.AppPath, path)
}

// loadEnvFiles loads environment variables from .env files in the app root.
// .env.local overrides .env, and neither overrides the real environment.
func loadEnvFiles(appPath string) {
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(filepath.Join(appPath, name))
	}
}
