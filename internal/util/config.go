// Package util provides common utilities for pingcheck.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Probe settings
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	PingCount          int    `mapstructure:"ping_count"`
	ReachabilityMethod string `mapstructure:"reachability_method"`

	// Live view
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Default target file
	TargetsFile string `mapstructure:"targets_file"`
}

// Timeout bounds accepted for a run.
const (
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 10
)

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".pingcheck")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "pingcheck.log"),

		TimeoutSeconds:     2,
		PingCount:          4,
		ReachabilityMethod: "exec",

		PollInterval: 100 * time.Millisecond,
	}
}

// LoadConfig loads configuration from file and environment into v.
// cfgFile overrides the config search path when set. A .env file in the
// working directory is loaded first so its PINGCHECK_* values apply.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("timeout_seconds", cfg.TimeoutSeconds)
	v.SetDefault("ping_count", cfg.PingCount)
	v.SetDefault("reachability_method", cfg.ReachabilityMethod)
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("targets_file", "")

	v.SetEnvPrefix("pingcheck")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(cfg.DataDir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The log file follows data_dir unless set explicitly.
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "pingcheck.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.TimeoutSeconds < MinTimeoutSeconds || c.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be in %d..%d, got %d",
			MinTimeoutSeconds, MaxTimeoutSeconds, c.TimeoutSeconds)
	}
	if c.PingCount < 1 {
		return fmt.Errorf("ping_count must be at least 1, got %d", c.PingCount)
	}
	switch c.ReachabilityMethod {
	case "exec", "icmp":
	default:
		return fmt.Errorf("reachability_method must be exec or icmp, got %q", c.ReachabilityMethod)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// DBPath returns the path of the target set database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "pingcheck.db")
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
