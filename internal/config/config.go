// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort   = 8080
	defaultServerHost   = "0.0.0.0"
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second

	defaultDatabasePath           = "./data/gapless.db"
	defaultDatabaseMigrationsPath = "file://./migrations"

	defaultLogLevel  = "info"
	defaultLogPretty = false

	defaultResolverBaseURL            = ""
	defaultResolverRequestTimeout     = 10 * time.Second
	defaultResolverBatchSize          = 10
	defaultResolverExpirySafetyMargin = 60 * time.Second
	defaultResolverEmbedded           = true
	defaultResolverSigningSecret      = "dev-signing-secret"
	defaultResolverURLTTL             = 15 * time.Minute

	defaultPlaybackTransitionThreshold  = 5.0
	defaultPlaybackPrefetchWindow       = 3
	defaultPlaybackInitialResolveWindow = 3
	defaultPlaybackTickInterval         = 500 * time.Millisecond

	envPrefix = "GAPLESS"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Resolver ResolverConfig
	Playback PlaybackConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds catalog database configuration
type DatabaseConfig struct {
	Path           string
	MigrationsPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// ResolverConfig holds signed-URL resolution configuration.
// When Embedded is true the server mounts its own development signer and
// BaseURL may be left empty; otherwise BaseURL must point at the external
// signing service.
type ResolverConfig struct {
	BaseURL            string
	APIKey             string
	RequestTimeout     time.Duration
	BatchSize          int
	ExpirySafetyMargin time.Duration
	Embedded           bool
	SigningSecret      string
	URLTTL             time.Duration
}

// PlaybackConfig holds playback engine tuning parameters
type PlaybackConfig struct {
	// TransitionThreshold is how many seconds before a chunk's end the
	// engine starts preloading the next chunk
	TransitionThreshold float64
	// PrefetchWindow is how many upcoming chunks get their URLs resolved
	// ahead of playback
	PrefetchWindow int
	// InitialResolveWindow is how many chunk URLs are resolved during
	// engine initialization
	InitialResolveWindow int
	// TickInterval is the position-update cadence of the built-in clock
	// handle
	TickInterval time.Duration
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/gapless")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file not found is OK, defaults and env vars cover everything
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.migrationspath", defaultDatabaseMigrationsPath)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	v.SetDefault("resolver.baseurl", defaultResolverBaseURL)
	v.SetDefault("resolver.requesttimeout", defaultResolverRequestTimeout)
	v.SetDefault("resolver.batchsize", defaultResolverBatchSize)
	v.SetDefault("resolver.expirysafetymargin", defaultResolverExpirySafetyMargin)
	v.SetDefault("resolver.embedded", defaultResolverEmbedded)
	v.SetDefault("resolver.signingsecret", defaultResolverSigningSecret)
	v.SetDefault("resolver.urlttl", defaultResolverURLTTL)

	v.SetDefault("playback.transitionthreshold", defaultPlaybackTransitionThreshold)
	v.SetDefault("playback.prefetchwindow", defaultPlaybackPrefetchWindow)
	v.SetDefault("playback.initialresolvewindow", defaultPlaybackInitialResolveWindow)
	v.SetDefault("playback.tickinterval", defaultPlaybackTickInterval)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	if !c.Resolver.Embedded && c.Resolver.BaseURL == "" {
		return fmt.Errorf("resolver base URL is required when the embedded signer is disabled")
	}
	if c.Resolver.RequestTimeout <= 0 {
		return fmt.Errorf("invalid resolver request timeout: %v (must be > 0)", c.Resolver.RequestTimeout)
	}
	if c.Resolver.BatchSize < 1 {
		return fmt.Errorf("invalid resolver batch size: %d (must be >= 1)", c.Resolver.BatchSize)
	}
	if c.Resolver.URLTTL <= c.Resolver.ExpirySafetyMargin {
		return fmt.Errorf("resolver URL TTL %v must exceed the expiry safety margin %v",
			c.Resolver.URLTTL, c.Resolver.ExpirySafetyMargin)
	}

	if c.Playback.TransitionThreshold <= 0 {
		return fmt.Errorf("invalid transition threshold: %f (must be > 0)", c.Playback.TransitionThreshold)
	}
	if c.Playback.PrefetchWindow < 1 {
		return fmt.Errorf("invalid prefetch window: %d (must be >= 1)", c.Playback.PrefetchWindow)
	}
	if c.Playback.InitialResolveWindow < 1 {
		return fmt.Errorf("invalid initial resolve window: %d (must be >= 1)", c.Playback.InitialResolveWindow)
	}
	if c.Playback.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval: %v (must be > 0)", c.Playback.TickInterval)
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
