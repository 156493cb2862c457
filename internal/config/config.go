package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/havogt/serialbox2/internal/archive"
	"github.com/havogt/serialbox2/internal/metrics"
	"github.com/havogt/serialbox2/internal/storage/diskmanager"
	"github.com/havogt/serialbox2/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of the serialbox tools
type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Disk    DiskConfig    `yaml:"disk"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// NoBufferLimit as max_buffer_bytes disables the per-occurrence buffer limit.
// An unset or zero value selects archive.DefaultMaxBufferBytes.
const NoBufferLimit = -1

// ArchiveConfig holds archive configuration
type ArchiveConfig struct {
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`
	MaxBufferBytes    int64  `yaml:"max_buffer_bytes"`
	SyncWrites        bool   `yaml:"sync_writes"`
	DeferLedgerWrites bool   `yaml:"defer_ledger_writes"`
}

// DiskConfig holds disk space guard configuration. Thresholds are usage
// percentages.
type DiskConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	CheckInterval           time.Duration `yaml:"check_interval"`
	WarningThreshold        float64       `yaml:"warning_threshold"`
	ThrottleThreshold       float64       `yaml:"throttle_threshold"`
	CircuitBreakerThreshold float64       `yaml:"circuit_breaker_threshold"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyEnvironmentOverrides applies SERIALBOX_* environment variables, which
// take precedence over the file
func ApplyEnvironmentOverrides(cfg *Config) {
	if alg := os.Getenv("SERIALBOX_CHECKSUM_ALGORITHM"); alg != "" {
		cfg.Archive.ChecksumAlgorithm = alg
	}
	if sync := os.Getenv("SERIALBOX_SYNC_WRITES"); sync != "" {
		if b, err := strconv.ParseBool(sync); err == nil {
			cfg.Archive.SyncWrites = b
		}
	}
	if level := os.Getenv("SERIALBOX_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("SERIALBOX_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if textfile := os.Getenv("SERIALBOX_METRICS_TEXTFILE"); textfile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = textfile
	}
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Archive.ChecksumAlgorithm == "" {
		cfg.Archive.ChecksumAlgorithm = string(util.AlgorithmSHA256)
	}
	if cfg.Archive.MaxBufferBytes == 0 {
		cfg.Archive.MaxBufferBytes = archive.DefaultMaxBufferBytes
	}

	if cfg.Disk.CheckInterval == 0 {
		cfg.Disk.CheckInterval = 10 * time.Second
	}
	if cfg.Disk.WarningThreshold == 0 {
		cfg.Disk.WarningThreshold = 80.0
	}
	if cfg.Disk.ThrottleThreshold == 0 {
		cfg.Disk.ThrottleThreshold = 90.0
	}
	if cfg.Disk.CircuitBreakerThreshold == 0 {
		cfg.Disk.CircuitBreakerThreshold = 95.0
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "serialbox"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := util.ParseAlgorithm(c.Archive.ChecksumAlgorithm); err != nil {
		return fmt.Errorf("archive.checksum_algorithm: %w", err)
	}
	if c.Archive.MaxBufferBytes < NoBufferLimit {
		return fmt.Errorf("archive.max_buffer_bytes must be positive, or %d for no limit", NoBufferLimit)
	}

	if c.Disk.Enabled {
		for name, v := range map[string]float64{
			"warning_threshold":         c.Disk.WarningThreshold,
			"throttle_threshold":        c.Disk.ThrottleThreshold,
			"circuit_breaker_threshold": c.Disk.CircuitBreakerThreshold,
		} {
			if v <= 0 || v > 100 {
				return fmt.Errorf("disk.%s must be between 0 and 100", name)
			}
		}
		if c.Disk.WarningThreshold > c.Disk.ThrottleThreshold ||
			c.Disk.ThrottleThreshold > c.Disk.CircuitBreakerThreshold {
			return fmt.Errorf("disk thresholds must satisfy warning <= throttle <= circuit_breaker")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}

// ToArchiveConfig maps the file configuration onto an archive configuration.
// Metrics are registered with reg when enabled.
func (c *Config) ToArchiveConfig(reg prometheus.Registerer) *archive.Config {
	cfg := &archive.Config{
		ChecksumAlgorithm: c.Archive.ChecksumAlgorithm,
		MaxBufferBytes:    c.Archive.MaxBufferBytes,
		SyncWrites:        c.Archive.SyncWrites,
		DeferLedgerWrites: c.Archive.DeferLedgerWrites,
	}
	if c.Archive.MaxBufferBytes == NoBufferLimit {
		cfg.MaxBufferBytes = 0
	}
	if c.Disk.Enabled {
		cfg.Disk = &diskmanager.DiskManagerConfig{
			CheckInterval:           c.Disk.CheckInterval,
			WarningThreshold:        c.Disk.WarningThreshold,
			ThrottleThreshold:       c.Disk.ThrottleThreshold,
			CircuitBreakerThreshold: c.Disk.CircuitBreakerThreshold,
		}
	}
	if c.Metrics.Enabled {
		cfg.Metrics = metrics.NewMetrics(c.Metrics.Namespace, reg)
	}
	return cfg
}
