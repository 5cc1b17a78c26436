// Package config loads taskmarket settings from a YAML file and
// TASKMARKET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "taskmarket.yaml"

// EnvPrefix prefixes environment overrides, e.g. TASKMARKET_SERVER_LISTEN.
const EnvPrefix = "TASKMARKET"

// Config is the full taskmarket configuration.
type Config struct {
	// Database is the SQLite file holding every collection.
	Database string `mapstructure:"database"`

	// Origin tags this process's writes. Empty picks a per-process name.
	Origin string `mapstructure:"origin"`

	// PollInterval is how often watchers check for foreign writes.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen    string        `mapstructure:"listen"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:     "taskmarket.db",
		PollInterval: time.Second,
		LogLevel:     "info",
		Server: ServerConfig{
			Listen:   ":8080",
			TokenTTL: 24 * time.Hour,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or DefaultFile if path is empty and that file exists), then the
// environment. An explicit path that cannot be read is an error.
func Load(path string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetDefault("database", def.Database)
	v.SetDefault("origin", def.Origin)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("server.listen", def.Server.Listen)
	v.SetDefault("server.jwt_secret", def.Server.JWTSecret)
	v.SetDefault("server.token_ttl", def.Server.TokenTTL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	if c.Database == "" {
		return errors.New("config: database must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}

// ResolvedOrigin returns Origin, or a name unique to this process so that
// concurrent CLI invocations see each other's writes.
func (c Config) ResolvedOrigin() string {
	if c.Origin != "" {
		return c.Origin
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
