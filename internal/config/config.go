// Package config loads nudge settings from a YAML file and NUDGE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/nudge/internal/engine"
)

// Config holds every setting the CLI and server read.
type Config struct {
	Database string         `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Location LocationConfig `mapstructure:"location"`
}

// ServerConfig configures `nudge serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // text|json
}

// NotifyConfig bounds notification retries.
type NotifyConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// RetryPolicy converts the settings for engine.NewRetryingNotifier.
func (n NotifyConfig) RetryPolicy() engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxAttempts:     n.MaxAttempts,
		InitialInterval: n.InitialInterval,
		MaxInterval:     n.MaxInterval,
	}
}

// LocationConfig names the zone used for TIME_RANGE and DAY_OF_WEEK.
type LocationConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Load resolves the wall-clock zone. "Local" and "" mean time.Local.
func (l LocationConfig) Load() (*time.Location, error) {
	if l.Timezone == "" || l.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("location.timezone: %w", err)
	}
	return loc, nil
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database", "nudge.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.initial_interval", "200ms")
	v.SetDefault("notify.max_interval", "2s")
	v.SetDefault("location.timezone", "Local")
}

// Load reads configuration. With an explicit path the file must exist;
// otherwise nudge.yaml is searched in "." and $HOME/.config/nudge and a
// missing file leaves the defaults in place. A malformed file is always an
// error. Environment variables override both (NUDGE_SERVER_ADDR for
// server.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("NUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nudge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/nudge")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the CLI could not act on.
func (c *Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Notify.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("notify.max_attempts %d must be at least 1", c.Notify.MaxAttempts))
	}
	if _, err := c.Location.Load(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
