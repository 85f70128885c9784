// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
	Replay    ReplayConfig    `mapstructure:"replay" yaml:"replay"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// StorageConfig locates the on-disk session store: one directory per session
// under Root, each holding a trace file and its screenshots.
type StorageConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// ExpandedRoot resolves a leading ~ in the storage root.
func (s StorageConfig) ExpandedRoot() (string, error) {
	root, err := homedir.Expand(s.Root)
	if err != nil {
		return "", fmt.Errorf("failed to expand storage root %q: %w", s.Root, err)
	}
	return root, nil
}

// DatabaseConfig holds the archive database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RetentionConfig bounds how much recorded session data survives pruning.
type RetentionConfig struct {
	// MaxAge removes session data older than this. Zero disables age pruning.
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
	// KeepLast caps the screenshots kept per session. Zero keeps everything.
	KeepLast int `mapstructure:"keep_last" yaml:"keep_last"`
}

// Validate checks the retention settings.
func (r *RetentionConfig) Validate() error {
	if r.MaxAge < 0 {
		return fmt.Errorf("retention.max_age must not be negative")
	}
	if r.KeepLast < 0 {
		return fmt.Errorf("retention.keep_last must not be negative")
	}
	return nil
}

// ExportConfig holds defaults for the export command.
type ExportConfig struct {
	Format      string `mapstructure:"format" yaml:"format"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
}

// Validate checks the export settings.
func (e *ExportConfig) Validate() error {
	switch e.Format {
	case "json", "jsonl", "xml":
	default:
		return fmt.Errorf("export.format must be one of json, jsonl, xml")
	}
	if e.Concurrency <= 0 {
		return fmt.Errorf("export.concurrency must be a positive integer")
	}
	return nil
}

// ReplayConfig paces the replay command.
type ReplayConfig struct {
	// Rate is the replay speed in steps per second.
	Rate float64 `mapstructure:"rate" yaml:"rate"`
}

// Validate checks the replay settings.
func (r *ReplayConfig) Validate() error {
	if r.Rate <= 0 {
		return fmt.Errorf("replay.rate must be a positive number of steps per second")
	}
	return nil
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "statetrace")
	v.SetDefault("logger.log_file", "statetrace.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Storage --
	v.SetDefault("storage.root", "~/.statetrace")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Retention --
	v.SetDefault("retention.max_age", "720h")
	v.SetDefault("retention.keep_last", 0)

	// -- Export --
	v.SetDefault("export.format", "json")
	v.SetDefault("export.compress", false)
	v.SetDefault("export.concurrency", 4)
	v.SetDefault("export.output_dir", "exports")

	// -- Replay --
	v.SetDefault("replay.rate", 1.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("database.url", "STATETRACE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is a required configuration field")
	}
	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("retention configuration invalid: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export configuration invalid: %w", err)
	}
	if err := c.Replay.Validate(); err != nil {
		return fmt.Errorf("replay configuration invalid: %w", err)
	}
	return nil
}
