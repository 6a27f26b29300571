// Package config loads the roster's settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/t77yq/task-roster/internal/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. ROSTER_DATABASE_PATH
const EnvPrefix = "ROSTER"

// Config holds the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Extender ExtenderConfig `mapstructure:"extender"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	History  HistoryConfig  `mapstructure:"history"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type DatabaseConfig struct {
	Path      string        `mapstructure:"path"`
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
}

// ExtenderConfig controls when and how the horizon extender runs
type ExtenderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Schedule      string        `mapstructure:"schedule"`
	Timezone      string        `mapstructure:"timezone"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// Location resolves Timezone
func (c ExtenderConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Stream         string        `mapstructure:"stream"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type MetricsConfig struct {
	Addr           string        `mapstructure:"addr"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

type HistoryConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "task-roster")
	v.SetDefault("log.development", false)

	v.SetDefault("database.path", "task_roster.db")
	v.SetDefault("database.tx_timeout", 15*time.Second)

	v.SetDefault("extender.enabled", true)
	v.SetDefault("extender.schedule", "0 0 2 * * *")
	v.SetDefault("extender.timezone", "UTC")
	v.SetDefault("extender.stale_after", scheduler.DefaultStaleAfter)
	v.SetDefault("extender.retry_attempts", 1)
	v.SetDefault("extender.retry_delay", 2*time.Second)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "ROSTER")
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.sample_interval", 15*time.Second)

	v.SetDefault("history.retention", 30*24*time.Hour)
}

// Load reads configuration from path, or from ./config/config.yaml when path
// is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the engine depends on
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Database.TxTimeout < scheduler.MinTxTimeout {
		return fmt.Errorf("database.tx_timeout must be at least %s, got %s", scheduler.MinTxTimeout, c.Database.TxTimeout)
	}

	if c.Extender.StaleAfter <= 0 || c.Extender.StaleAfter >= scheduler.MaxStaleAfter {
		return fmt.Errorf("extender.stale_after must be between 0 and %s, got %s", scheduler.MaxStaleAfter, c.Extender.StaleAfter)
	}
	if c.Extender.RetryAttempts < 0 {
		return fmt.Errorf("extender.retry_attempts must not be negative, got %d", c.Extender.RetryAttempts)
	}
	if _, err := c.Extender.Location(); err != nil {
		return fmt.Errorf("extender.timezone: %w", err)
	}
	if c.Extender.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Extender.Schedule); err != nil {
			return fmt.Errorf("extender.schedule: %w", err)
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" || c.NATS.Stream == "" {
			return errors.New("nats.url and nats.stream are required when nats is enabled")
		}
	}
	if c.Metrics.SampleInterval <= 0 {
		return fmt.Errorf("metrics.sample_interval must be positive, got %s", c.Metrics.SampleInterval)
	}
	return nil
}
