// Package config provides Viper-based hierarchical configuration management
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Database struct {
		Driver       string `mapstructure:"driver" yaml:"driver"`
		DSN          string `mapstructure:"dsn" yaml:"dsn"`
		MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	} `mapstructure:"database" yaml:"database"`

	Import struct {
		Owner                string `mapstructure:"owner" yaml:"owner"`
		Format               string `mapstructure:"format" yaml:"format"`
		AutoEnrich           bool   `mapstructure:"auto_enrich" yaml:"auto_enrich"`
		AutoTag              bool   `mapstructure:"auto_tag" yaml:"auto_tag"`
		MaxRowErrorsReported int    `mapstructure:"max_row_errors_reported" yaml:"max_row_errors_reported"`
		Workers              int    `mapstructure:"workers" yaml:"workers"`
	} `mapstructure:"import" yaml:"import"`

	Merchant struct {
		PatternConfidence     float64 `mapstructure:"pattern_confidence" yaml:"pattern_confidence"`
		AutoMerchantThreshold float64 `mapstructure:"auto_merchant_threshold" yaml:"auto_merchant_threshold"`
		CacheTTLSeconds       int     `mapstructure:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	} `mapstructure:"merchant" yaml:"merchant"`

	Tagging struct {
		MinApplyConfidence float64 `mapstructure:"min_apply_confidence" yaml:"min_apply_confidence"`
		TablesFile         string  `mapstructure:"tables_file" yaml:"tables_file"`
	} `mapstructure:"tagging" yaml:"tagging"`

	AI struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		Model          string `mapstructure:"model" yaml:"model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		MaxTags        int    `mapstructure:"max_tags" yaml:"max_tags"`
		APIKey         string `mapstructure:"api_key" yaml:"-"` // Never serialize API key
	} `mapstructure:"ai" yaml:"ai"`

	Export struct {
		Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	} `mapstructure:"export" yaml:"export"`
}

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// InitializeConfig loads configuration from defaults, the first config.yaml
// found in the search path, and STMT_* environment variables.
func InitializeConfig() (*Config, error) {
	return load("")
}

// InitializeConfigFromFile is InitializeConfig with an explicit config file.
func InitializeConfigFromFile(path string) (*Config, error) {
	return load(path)
}

func load(explicitFile string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.stmt-ledger")
		v.AddConfigPath(".stmt-ledger")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix("STMT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// 5. The Gemini key is read unprefixed
	if err := v.BindEnv("ai.api_key", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind GEMINI_API_KEY: %w", err)
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}

	// 6. Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	config, err := decode(v)
	if err != nil {
		logrus.WithError(err).Error("Default configuration does not decode")
		return &Config{}
	}
	return config
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "stmt-ledger.db")
	v.SetDefault("database.max_open_conns", 1)

	v.SetDefault("import.owner", "default")
	v.SetDefault("import.format", "mbank")
	v.SetDefault("import.auto_enrich", true)
	v.SetDefault("import.auto_tag", true)
	v.SetDefault("import.max_row_errors_reported", 20)
	v.SetDefault("import.workers", 4)

	v.SetDefault("merchant.pattern_confidence", 0.95)
	v.SetDefault("merchant.auto_merchant_threshold", 0.8)
	v.SetDefault("merchant.cache_ttl_seconds", 300)

	v.SetDefault("tagging.min_apply_confidence", 0.5)
	v.SetDefault("tagging.tables_file", "")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("ai.max_tags", 3)
	v.SetDefault("ai.api_key", "")

	v.SetDefault("export.delimiter", ",")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	switch config.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %s (must be '%s' or '%s')", config.Database.Driver, DriverSQLite, DriverPostgres)
	}
	if config.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}

	if strings.TrimSpace(config.Import.Owner) == "" {
		return fmt.Errorf("import.owner must not be empty")
	}
	if config.Import.Workers < 1 || config.Import.Workers > 64 {
		return fmt.Errorf("import.workers must be between 1 and 64, got: %d", config.Import.Workers)
	}

	for name, value := range map[string]float64{
		"merchant.pattern_confidence":      config.Merchant.PatternConfidence,
		"merchant.auto_merchant_threshold": config.Merchant.AutoMerchantThreshold,
		"tagging.min_apply_confidence":     config.Tagging.MinApplyConfidence,
	} {
		if value < 0.0 || value > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got: %f", name, value)
		}
	}
	if config.Merchant.PatternConfidence < config.Merchant.AutoMerchantThreshold {
		return fmt.Errorf("merchant.pattern_confidence (%.2f) must not be below merchant.auto_merchant_threshold (%.2f)",
			config.Merchant.PatternConfidence, config.Merchant.AutoMerchantThreshold)
	}

	if config.AI.Enabled {
		if config.AI.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY required when AI is enabled")
		}
		if config.AI.TimeoutSeconds < 1 || config.AI.TimeoutSeconds > 300 {
			return fmt.Errorf("ai.timeout_seconds must be between 1 and 300, got: %d", config.AI.TimeoutSeconds)
		}
	}

	if len([]rune(config.Export.Delimiter)) != 1 {
		return fmt.Errorf("export delimiter must be a single character, got: %s", config.Export.Delimiter)
	}

	return nil
}

// Validate checks a configuration assembled or changed outside of load,
// for example after command line overrides.
func (c *Config) Validate() error {
	return validateConfig(c)
}
