package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MaxConcurrency bounds the number of pooled sessions used by an export.
const MaxConcurrency = 16

// ExportConfig holds the defaults for an export run.
type ExportConfig struct {
	// Directory is the destination root for exported files.
	Directory string `mapstructure:"directory" yaml:"directory"`

	// Formats lists the enabled formats ("eml", "mbox", "json", "csv").
	Formats []string `mapstructure:"formats" yaml:"formats"`

	PreserveStructure bool `mapstructure:"preserve_structure" yaml:"preserve_structure"`
	SkipExisting      bool `mapstructure:"skip_existing" yaml:"skip_existing"`

	// Concurrency is the number of sessions used to fetch raw messages.
	// 1 keeps the export sequential on the main session.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// FormatSet parses Formats. LoadConfig has already validated them.
func (c ExportConfig) FormatSet() FormatSet {
	s, _ := ParseFormats(c.Formats)
	return s
}

// DatabaseConfig points at the local sqlite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// SessionConfig holds protocol session settings.
type SessionConfig struct {
	DialTimeoutSec int `mapstructure:"dial_timeout_sec" yaml:"dial_timeout_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
}

// ConfigDir returns ~/.config/mailexport, or the working directory when
// the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailexport")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailexport/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Export: ExportConfig{
			Directory:         "./email_downloads",
			Formats:           []string{"eml"},
			PreserveStructure: true,
			SkipExisting:      true,
			Concurrency:       1,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "mailexport.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "mailexport.log"),
		},
		Session: SessionConfig{
			DialTimeoutSec: 30,
		},
	}
}

// NewViper returns a viper instance with defaults and environment
// overrides (MAILEXPORT_EXPORT_DIRECTORY and so on) registered.
func NewViper() *viper.Viper {
	def := DefaultAppConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mailexport")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("export.directory", def.Export.Directory)
	v.SetDefault("export.formats", def.Export.Formats)
	v.SetDefault("export.preserve_structure", def.Export.PreserveStructure)
	v.SetDefault("export.skip_existing", def.Export.SkipExisting)
	v.SetDefault("export.concurrency", def.Export.Concurrency)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("session.dial_timeout_sec", def.Session.DialTimeoutSec)

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults (plus environment overrides) are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := NewViper()
	v.SetConfigFile(path)
	return LoadConfigFrom(v)
}

// LoadConfigFrom reads the config file registered on v, if any, and
// unmarshals the merged result. Callers that bind command-line flags
// into v use this directly.
func LoadConfigFrom(v *viper.Viper) (*AppConfig, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates formats and clamps numeric settings.
func (c *AppConfig) normalize() error {
	if _, err := ParseFormats(c.Export.Formats); err != nil {
		return fmt.Errorf("export.formats: %w", err)
	}
	if c.Export.Concurrency < 1 {
		c.Export.Concurrency = 1
	}
	if c.Export.Concurrency > MaxConcurrency {
		c.Export.Concurrency = MaxConcurrency
	}
	if c.Session.DialTimeoutSec <= 0 {
		c.Session.DialTimeoutSec = 30
	}
	if c.Export.Directory == "" {
		c.Export.Directory = DefaultAppConfig().Export.Directory
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("export", cfg.Export)
	v.Set("database", cfg.Database)
	v.Set("log", cfg.Log)
	v.Set("session", cfg.Session)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
