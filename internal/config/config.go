// Package config provides configuration management for the paper trader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Trading TradingConfig `mapstructure:"trading"`
	Margin  MarginConfig  `mapstructure:"margin"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Server  ServerConfig  `mapstructure:"server"`
	Journal JournalConfig `mapstructure:"journal"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Log     LogConfig     `mapstructure:"log"`

	// Dir is the directory the config was loaded from.
	Dir string `mapstructure:"-"`
	// Path is the config file used, empty when defaults were used.
	Path string `mapstructure:"-"`
	// Created is set when Load wrote a fresh template.
	Created bool `mapstructure:"-"`
}

// TradingConfig holds account settings.
type TradingConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	DefaultAccount string  `mapstructure:"default_account"`
}

// MarginConfig holds margin settings.
type MarginConfig struct {
	DerivativeRate float64 `mapstructure:"derivative_rate"` // fraction of notional for FUT/OPT
}

// CatalogConfig holds instrument catalog settings.
type CatalogConfig struct {
	File            string `mapstructure:"file"` // YAML seed, empty for built-in list
	Seed            int64  `mapstructure:"seed"`
	Expiries        int    `mapstructure:"expiries"`
	StrikesEachSide int    `mapstructure:"strikes_each_side"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// JournalConfig holds SQLite journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// KafkaConfig holds event publisher settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	JSON       bool   `mapstructure:"json"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultConfigDir returns the default configuration directory.
// PAPERTRADER_CONFIG_DIR overrides it.
func DefaultConfigDir() string {
	if dir := os.Getenv("PAPERTRADER_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/paper-trader"
	}
	return filepath.Join(home, ".config", "paper-trader")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("trading.initial_balance", 1000000.0)
	v.SetDefault("trading.default_account", "default")

	v.SetDefault("margin.derivative_rate", 0.12)

	v.SetDefault("catalog.file", "")
	v.SetDefault("catalog.seed", 42)
	v.SetDefault("catalog.expiries", 3)
	v.SetDefault("catalog.strikes_each_side", 8)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", filepath.Join(configDir, "journal.db"))

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "paper-trader.events")

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.console", logDefaults.Console)
	v.SetDefault("log.json", logDefaults.JSON)
	v.SetDefault("log.file", logDefaults.File)
	v.SetDefault("log.path", filepath.Join(configDir, "logs", "paper-trader.log"))
	v.SetDefault("log.max_size_mb", logDefaults.MaxSize)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age_days", logDefaults.MaxAge)
}

// Default returns the built-in configuration for configDir.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	v := viper.New()
	setDefaults(v, configDir)

	cfg := &Config{}
	// Defaults are static and always decode.
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	cfg := &Config{Dir: configDir}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
		cfg.Created = true
	} else {
		cfg.Path = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAPERTRADER_INITIAL_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.InitialBalance = f
		}
	}
	if v := os.Getenv("PAPERTRADER_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PAPERTRADER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PAPERTRADER_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.InitialBalance <= 0 {
		return terrors.Wrap(terrors.ErrConfigInvalid, "trading.initial_balance must be positive")
	}
	if strings.TrimSpace(c.Trading.DefaultAccount) == "" {
		return terrors.Wrap(terrors.ErrConfigInvalid, "trading.default_account must not be empty")
	}
	if c.Margin.DerivativeRate <= 0 || c.Margin.DerivativeRate > 1 {
		return terrors.Wrap(terrors.ErrConfigInvalid, "margin.derivative_rate must be in (0, 1]")
	}
	if c.Catalog.Expiries < 1 || c.Catalog.Expiries > 12 {
		return terrors.Wrap(terrors.ErrConfigInvalid, "catalog.expiries must be between 1 and 12")
	}
	if c.Catalog.StrikesEachSide < 1 {
		return terrors.Wrap(terrors.ErrConfigInvalid, "catalog.strikes_each_side must be at least 1")
	}
	if c.Server.Addr == "" {
		return terrors.Wrap(terrors.ErrConfigInvalid, "server.addr must not be empty")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return terrors.Wrap(terrors.ErrConfigInvalid, "journal.path is required when the journal is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return terrors.Wrap(terrors.ErrConfigInvalid, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return terrors.Wrap(terrors.ErrConfigInvalid, "kafka.topic is required when kafka is enabled")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return terrors.Wrapf(terrors.ErrConfigInvalid, "invalid log level: %s", c.Log.Level)
	}
	return nil
}

// InitialBalance returns the starting balance as a decimal, rounded to paise.
func (c *Config) InitialBalance() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.InitialBalance).Round(2)
}

// DerivativeRate returns the FUT/OPT margin fraction as a decimal.
func (c *Config) DerivativeRate() decimal.Decimal {
	return decimal.NewFromFloat(c.Margin.DerivativeRate)
}

// Logging converts the log section for the logging package.
func (c *Config) Logging() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Log.Level,
		Console:    c.Log.Console,
		JSON:       c.Log.JSON,
		File:       c.Log.File,
		FilePath:   c.Log.Path,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
	}
}
