package config

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != defaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, defaultServerPort)
	}
	if cfg.Server.Host != defaultServerHost {
		t.Errorf("Server.Host = %s, want %s", cfg.Server.Host, defaultServerHost)
	}

	if cfg.Database.Path != defaultDatabasePath {
		t.Errorf("Database.Path = %s, want %s", cfg.Database.Path, defaultDatabasePath)
	}
	if cfg.Database.MigrationsPath != defaultDatabaseMigrationsPath {
		t.Errorf("Database.MigrationsPath = %s, want %s", cfg.Database.MigrationsPath, defaultDatabaseMigrationsPath)
	}

	if cfg.Logging.Level != defaultLogLevel {
		t.Errorf("Logging.Level = %s, want %s", cfg.Logging.Level, defaultLogLevel)
	}

	if cfg.Resolver.BatchSize != defaultResolverBatchSize {
		t.Errorf("Resolver.BatchSize = %d, want %d", cfg.Resolver.BatchSize, defaultResolverBatchSize)
	}
	if cfg.Resolver.ExpirySafetyMargin != defaultResolverExpirySafetyMargin {
		t.Errorf("Resolver.ExpirySafetyMargin = %v, want %v", cfg.Resolver.ExpirySafetyMargin, defaultResolverExpirySafetyMargin)
	}
	if !cfg.Resolver.Embedded {
		t.Error("Resolver.Embedded = false, want true by default")
	}

	if cfg.Playback.TransitionThreshold != defaultPlaybackTransitionThreshold {
		t.Errorf("Playback.TransitionThreshold = %f, want %f", cfg.Playback.TransitionThreshold, defaultPlaybackTransitionThreshold)
	}
	if cfg.Playback.PrefetchWindow != defaultPlaybackPrefetchWindow {
		t.Errorf("Playback.PrefetchWindow = %d, want %d", cfg.Playback.PrefetchWindow, defaultPlaybackPrefetchWindow)
	}
	if cfg.Playback.TickInterval != defaultPlaybackTickInterval {
		t.Errorf("Playback.TickInterval = %v, want %v", cfg.Playback.TickInterval, defaultPlaybackTickInterval)
	}
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{
				Port:         8080,
				Host:         "0.0.0.0",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			Database: DatabaseConfig{Path: "./data/gapless.db", MigrationsPath: "file://./migrations"},
			Logging:  LoggingConfig{Level: "info"},
			Resolver: ResolverConfig{
				Embedded:           true,
				RequestTimeout:     10 * time.Second,
				BatchSize:          10,
				ExpirySafetyMargin: 60 * time.Second,
				URLTTL:             15 * time.Minute,
			},
			Playback: PlaybackConfig{
				TransitionThreshold:  5.0,
				PrefetchWindow:       3,
				InitialResolveWindow: 3,
				TickInterval:         500 * time.Millisecond,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"external resolver without base URL", func(c *Config) { c.Resolver.Embedded = false }, true},
		{"external resolver with base URL", func(c *Config) {
			c.Resolver.Embedded = false
			c.Resolver.BaseURL = "https://signer.example.com"
		}, false},
		{"zero batch size", func(c *Config) { c.Resolver.BatchSize = 0 }, true},
		{"ttl below safety margin", func(c *Config) { c.Resolver.URLTTL = 30 * time.Second }, true},
		{"zero transition threshold", func(c *Config) { c.Playback.TransitionThreshold = 0 }, true},
		{"zero prefetch window", func(c *Config) { c.Playback.PrefetchWindow = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
