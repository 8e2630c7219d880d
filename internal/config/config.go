// Package config provides configuration management for logspam.
//
// This package handles loading configuration from multiple sources:
// - Configuration files (YAML, JSON, TOML)
// - Environment variables
// - Command line flags
// - Default values
//
// Configuration is loaded in order of precedence (highest to lowest):
// 1. Command line flags
// 2. Environment variables
// 3. Configuration file
// 4. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete logspam configuration
type Config struct {
	Spam    SpamConfig    `mapstructure:"spam" yaml:"spam"`
	Process ProcessConfig `mapstructure:"process" yaml:"process"`
	Rotate  RotateConfig  `mapstructure:"rotate" yaml:"rotate"`
	Buffer  BufferConfig  `mapstructure:"buffer" yaml:"buffer"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SpamConfig contains settings for the spam fan-out runner
type SpamConfig struct {
	LineLength int  `mapstructure:"line_length" yaml:"line_length"`
	Processes  bool `mapstructure:"processes" yaml:"processes"`
	TailLines  int  `mapstructure:"tail_lines" yaml:"tail_lines"`
}

// ProcessConfig contains process runner configuration
type ProcessConfig struct {
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout" yaml:"graceful_shutdown_timeout"`
	RestartOnFailure        bool          `mapstructure:"restart_on_failure" yaml:"restart_on_failure"`
	MaxRestarts             int           `mapstructure:"max_restarts" yaml:"max_restarts"`
	RestartInitialDelay     time.Duration `mapstructure:"restart_initial_delay" yaml:"restart_initial_delay"`
	RestartMaxDelay         time.Duration `mapstructure:"restart_max_delay" yaml:"restart_max_delay"`
}

// RotateConfig contains log rotation configuration for the tee command
type RotateConfig struct {
	MaxFiles      int           `mapstructure:"max_files" yaml:"max_files"`
	MaxAgeDays    int           `mapstructure:"max_age_days" yaml:"max_age_days"`
	ScanFrequency time.Duration `mapstructure:"scan_frequency" yaml:"scan_frequency"`
	Compress      bool          `mapstructure:"compress" yaml:"compress"`
	PreScript     string        `mapstructure:"pre_script" yaml:"pre_script"`
	PostScript    string        `mapstructure:"post_script" yaml:"post_script"`
	MaxFileSize   string        `mapstructure:"max_file_size" yaml:"max_file_size"`
	ReopenRetries uint64        `mapstructure:"reopen_retries" yaml:"reopen_retries"`
}

// BufferConfig contains ring buffer configuration
type BufferConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age" yaml:"max_age"`
	MaxSize         string        `mapstructure:"max_size" yaml:"max_size"`
	MaxLineSize     string        `mapstructure:"max_line_size" yaml:"max_line_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Spam: SpamConfig{
			LineLength: 100,
			Processes:  false,
			TailLines:  0,
		},
		Process: ProcessConfig{
			GracefulShutdownTimeout: 10 * time.Second,
			RestartOnFailure:        false,
			MaxRestarts:             0,
			RestartInitialDelay:     1 * time.Second,
			RestartMaxDelay:         30 * time.Second,
		},
		Rotate: RotateConfig{
			MaxFiles:      -1,
			MaxAgeDays:    -1,
			ScanFrequency: 1 * time.Second,
			Compress:      false,
			PreScript:     "",
			PostScript:    "",
			MaxFileSize:   "",
			ReopenRetries: 5,
		},
		Buffer: BufferConfig{
			MaxAge:          5 * time.Minute,
			MaxSize:         "5MB",
			MaxLineSize:     "64KB",
			CleanupInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			OutputFile: "",
			Verbose:    false,
		},
	}
}

// LoadConfig loads configuration from various sources
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure environment variable handling
	v.SetEnvPrefix("LOGSPAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set config file if provided
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		// Search for config file in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.logspam")
		v.AddConfigPath("/etc/logspam")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// If a specific config file was provided and not found, that's an error
			if configFile != "" {
				return nil, fmt.Errorf("config file not found: %s", configFile)
			}
			// Otherwise, config file not found is okay, we'll use defaults
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Spam defaults
	v.SetDefault("spam.line_length", defaults.Spam.LineLength)
	v.SetDefault("spam.processes", defaults.Spam.Processes)
	v.SetDefault("spam.tail_lines", defaults.Spam.TailLines)

	// Process defaults
	v.SetDefault("process.graceful_shutdown_timeout", defaults.Process.GracefulShutdownTimeout)
	v.SetDefault("process.restart_on_failure", defaults.Process.RestartOnFailure)
	v.SetDefault("process.max_restarts", defaults.Process.MaxRestarts)
	v.SetDefault("process.restart_initial_delay", defaults.Process.RestartInitialDelay)
	v.SetDefault("process.restart_max_delay", defaults.Process.RestartMaxDelay)

	// Rotate defaults
	v.SetDefault("rotate.max_files", defaults.Rotate.MaxFiles)
	v.SetDefault("rotate.max_age_days", defaults.Rotate.MaxAgeDays)
	v.SetDefault("rotate.scan_frequency", defaults.Rotate.ScanFrequency)
	v.SetDefault("rotate.compress", defaults.Rotate.Compress)
	v.SetDefault("rotate.pre_script", defaults.Rotate.PreScript)
	v.SetDefault("rotate.post_script", defaults.Rotate.PostScript)
	v.SetDefault("rotate.max_file_size", defaults.Rotate.MaxFileSize)
	v.SetDefault("rotate.reopen_retries", defaults.Rotate.ReopenRetries)

	// Buffer defaults
	v.SetDefault("buffer.max_age", defaults.Buffer.MaxAge)
	v.SetDefault("buffer.max_size", defaults.Buffer.MaxSize)
	v.SetDefault("buffer.max_line_size", defaults.Buffer.MaxLineSize)
	v.SetDefault("buffer.cleanup_interval", defaults.Buffer.CleanupInterval)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output_file", defaults.Logging.OutputFile)
	v.SetDefault("logging.verbose", defaults.Logging.Verbose)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	// Validate spam configuration
	if config.Spam.LineLength < 0 {
		return fmt.Errorf("spam.line_length must be non-negative, got %d", config.Spam.LineLength)
	}

	if config.Spam.TailLines < 0 {
		return fmt.Errorf("spam.tail_lines must be non-negative, got %d", config.Spam.TailLines)
	}

	// Validate process configuration
	if config.Process.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("process.graceful_shutdown_timeout must be positive, got %v", config.Process.GracefulShutdownTimeout)
	}

	if config.Process.MaxRestarts < 0 {
		return fmt.Errorf("process.max_restarts must be non-negative, got %d", config.Process.MaxRestarts)
	}

	if config.Process.RestartInitialDelay < 0 {
		return fmt.Errorf("process.restart_initial_delay must be non-negative, got %v", config.Process.RestartInitialDelay)
	}

	// Validate rotate configuration
	if config.Rotate.ScanFrequency <= 0 {
		return fmt.Errorf("rotate.scan_frequency must be positive, got %v", config.Rotate.ScanFrequency)
	}

	if config.Rotate.MaxFileSize != "" {
		if err := validateSizeString(config.Rotate.MaxFileSize, "rotate.max_file_size"); err != nil {
			return err
		}
	}

	// Validate buffer configuration
	if config.Buffer.MaxAge <= 0 {
		return fmt.Errorf("buffer.max_age must be positive, got %v", config.Buffer.MaxAge)
	}

	if config.Buffer.CleanupInterval <= 0 {
		return fmt.Errorf("buffer.cleanup_interval must be positive, got %v", config.Buffer.CleanupInterval)
	}

	if err := validateSizeString(config.Buffer.MaxSize, "buffer.max_size"); err != nil {
		return err
	}

	if err := validateSizeString(config.Buffer.MaxLineSize, "buffer.max_line_size"); err != nil {
		return err
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[config.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %s", config.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[config.Logging.Format] {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %s", config.Logging.Format)
	}

	return nil
}

// validateSizeString validates size strings like "5MB", "64KB"
func validateSizeString(size, field string) error {
	if size == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}

	_, err := ParseSize(size)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}

	return nil
}

// ParseSize parses size strings like "5MB", "64KB" into bytes
func ParseSize(size string) (int64, error) {
	if size == "" {
		return 0, fmt.Errorf("size string cannot be empty")
	}

	// Convert to uppercase for case-insensitive parsing
	size = strings.ToUpper(size)

	// Define size units in order (longest first to avoid conflicts)
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	// Find the unit
	var multiplier int64 = 1 // Default to bytes
	var valueStr string

	for _, unit := range units {
		if strings.HasSuffix(size, unit.suffix) {
			multiplier = unit.multiplier
			valueStr = strings.TrimSuffix(size, unit.suffix)
			break
		}
	}

	// If no unit found, assume bytes
	if valueStr == "" {
		valueStr = size
		multiplier = 1
	}

	// Parse the numeric value (handle float values by rejecting them)
	var value int64
	var floatValue float64

	// Check if it's a float first
	if n, err := fmt.Sscanf(valueStr, "%f", &floatValue); err == nil && n == 1 {
		// If it parsed as float but is actually an integer, it's okay
		if floatValue == float64(int64(floatValue)) {
			value = int64(floatValue)
		} else {
			return 0, fmt.Errorf("float values not supported in size string: %s", valueStr)
		}
	} else {
		return 0, fmt.Errorf("invalid numeric value in size string: %s", valueStr)
	}

	if value < 0 {
		return 0, fmt.Errorf("size value cannot be negative: %d", value)
	}

	return value * multiplier, nil
}

// GetConfigPaths returns the paths where config files are searched
func GetConfigPaths() []string {
	paths := []string{
		"./config.yaml",
		"./config.yml",
		"./config.json",
		"./config.toml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".logspam", "config.yaml"),
			filepath.Join(home, ".logspam", "config.yml"),
			filepath.Join(home, ".logspam", "config.json"),
			filepath.Join(home, ".logspam", "config.toml"),
		)
	}

	paths = append(paths,
		"/etc/logspam/config.yaml",
		"/etc/logspam/config.yml",
		"/etc/logspam/config.json",
		"/etc/logspam/config.toml",
	)

	return paths
}

// GetEnvVarName returns the environment variable name for a config key
func GetEnvVarName(key string) string {
	return "LOGSPAM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
