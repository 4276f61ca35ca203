package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all opsalert configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings. Path is used by sqlite, DSN by postgres.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// WebhooksConfig defines the outbound destinations.
type WebhooksConfig struct {
	AlertsURL          string        `mapstructure:"alerts_url"`
	StageChangeURL     string        `mapstructure:"stage_change_url"`
	PhaseActivationURL string        `mapstructure:"phase_activation_url"`
	Secret             string        `mapstructure:"secret"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// RulesConfig points at the optional rules file.
type RulesConfig struct {
	File string `mapstructure:"file"`
}

// SchedulerConfig defines the batch loop used by serve.
type SchedulerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// DispatchConfig bounds parallel deliveries within a run.
type DispatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ServerConfig defines the HTTP API.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".opsalert"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".opsalert", "opsalert.db"))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("webhooks.alerts_url", "")
	v.SetDefault("webhooks.stage_change_url", "")
	v.SetDefault("webhooks.phase_activation_url", "")
	v.SetDefault("webhooks.secret", "")
	v.SetDefault("webhooks.timeout", "10s")
	v.SetDefault("rules.file", "")
	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.run_timeout", "10m")
	v.SetDefault("dispatch.concurrency", 1)
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("OPSALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that viper cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "", "sqlite", "sqlite3":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "postgres", "postgresql", "pq":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be at least 1, got %d", c.Dispatch.Concurrency)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// StorageDSN returns the connection string for the configured driver.
func (c *Config) StorageDSN() string {
	switch strings.ToLower(c.Storage.Driver) {
	case "postgres", "postgresql", "pq":
		return c.Storage.DSN
	}
	return c.Storage.Path
}
