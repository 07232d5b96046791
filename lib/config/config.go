// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bureau-foundation/contextstore/lib/compress"
	"github.com/robfig/cron/v3"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "CONTEXTSTORE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the context store.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Hot       HotConfig       `yaml:"hot"`
	Warm      WarmConfig      `yaml:"warm"`
	Cold      ColdConfig      `yaml:"cold"`
	Migration MigrationConfig `yaml:"migration"`

	Redis       RedisConfig       `yaml:"redis"`
	Persistent  PersistentConfig  `yaml:"persistent"`
	Compression CompressionConfig `yaml:"compression"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// Per-environment overrides, applied after the base config is
	// loaded. Kept as raw nodes so that only the keys they contain
	// are decoded over the base values.
	Development *yaml.Node `yaml:"development,omitempty"`
	Staging     *yaml.Node `yaml:"staging,omitempty"`
	Production  *yaml.Node `yaml:"production,omitempty"`
}

// HotConfig configures the hot tier.
type HotConfig struct {
	// TTLSeconds is the lifetime of a hot entry from its last write.
	// Default: 3600
	TTLSeconds int64 `yaml:"ttl_seconds"`

	// MaxSizeBytes bounds the stored size of a hot entry. Larger
	// entries are placed in the warm tier.
	// Default: 1048576
	MaxSizeBytes int64 `yaml:"max_size_bytes"`

	// CompressionThresholdBytes is the serialized size above which hot
	// payloads are compressed.
	// Default: 10240
	CompressionThresholdBytes int64 `yaml:"compression_threshold_bytes"`

	// FailOpenWrites stores new entries in the warm tier while the hot
	// tier is unavailable instead of failing them.
	// Default: false
	FailOpenWrites bool `yaml:"fail_open_writes"`
}

// TTL returns TTLSeconds as a duration.
func (h HotConfig) TTL() time.Duration { return seconds(h.TTLSeconds) }

// WarmConfig configures the warm tier.
type WarmConfig struct {
	// TTLSeconds is the lifetime of a warm entry from its last write.
	// Default: 604800 (7 days)
	TTLSeconds int64 `yaml:"ttl_seconds"`

	// CompressionEnabled compresses every warm payload on write.
	// Default: true
	CompressionEnabled bool `yaml:"compression_enabled"`
}

// TTL returns TTLSeconds as a duration.
func (w WarmConfig) TTL() time.Duration { return seconds(w.TTLSeconds) }

// ColdConfig configures the cold tier.
type ColdConfig struct {
	// CompressionEnabled compresses every cold payload on write.
	// Default: true
	CompressionEnabled bool `yaml:"compression_enabled"`
}

// MigrationConfig configures tier migration and promotion.
type MigrationConfig struct {
	// HotToWarmAccessThreshold: hot entries read at most this many
	// times are moved to warm each cycle.
	// Default: 5
	HotToWarmAccessThreshold int64 `yaml:"hot_to_warm_access_threshold"`

	// WarmToColdAgeSeconds: warm entries not read for this long are
	// moved to cold.
	// Default: 259200 (3 days)
	WarmToColdAgeSeconds int64 `yaml:"warm_to_cold_age_seconds"`

	// IntervalSeconds is the time between migration cycles.
	// Default: 300
	IntervalSeconds int64 `yaml:"interval_seconds"`

	// PromotionThreshold: warm or cold entries read more than this
	// many times are moved to hot.
	// Default: 10
	PromotionThreshold int64 `yaml:"promotion_threshold"`

	// BatchSize is the page size of migration and compression scans.
	// Default: 100
	BatchSize int `yaml:"batch_size"`
}

// WarmToColdAge returns WarmToColdAgeSeconds as a duration.
func (m MigrationConfig) WarmToColdAge() time.Duration { return seconds(m.WarmToColdAgeSeconds) }

// Interval returns IntervalSeconds as a duration.
func (m MigrationConfig) Interval() time.Duration { return seconds(m.IntervalSeconds) }

// RedisConfig configures the Redis server backing the hot tier.
type RedisConfig struct {
	// Address is host:port. Empty selects an in-process hot tier,
	// which is lost when the process exits.
	Address string `yaml:"address"`

	// Password may reference the environment, e.g.
	// ${CONTEXTSTORE_REDIS_PASSWORD}.
	Password string `yaml:"password"`

	DB int `yaml:"db"`

	// KeyPrefix namespaces every hot tier key.
	// Default: contextstore
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeoutSeconds bounds connection setup.
	// Default: 5
	DialTimeoutSeconds int64 `yaml:"dial_timeout_seconds"`
}

// DialTimeout returns DialTimeoutSeconds as a duration.
func (r RedisConfig) DialTimeout() time.Duration { return seconds(r.DialTimeoutSeconds) }

// PersistentConfig configures the SQLite database backing the warm and
// cold tiers.
type PersistentConfig struct {
	// Path is the database file.
	// Default: ${CONTEXTSTORE_ROOT}/context.db
	Path string `yaml:"path"`

	// PoolSize bounds the connection pool.
	// Default: 10
	PoolSize int `yaml:"pool_size"`
}

// CompressionConfig selects the compression algorithm.
type CompressionConfig struct {
	// Algorithm is zstd, lz4, or none.
	// Default: zstd
	Algorithm string `yaml:"algorithm"`
}

// Codec returns a codec for the configured algorithm.
func (c CompressionConfig) Codec() (*compress.Codec, error) {
	algorithm, err := compress.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return nil, err
	}
	return compress.New(algorithm)
}

// MaintenanceConfig configures scheduled maintenance in serve.
type MaintenanceConfig struct {
	// CompressSchedule is a five-field cron expression for compressing
	// old persistent entries. Empty disables the job.
	// Default: "0 3 * * *"
	CompressSchedule string `yaml:"compress_schedule"`

	// CompressOlderThanSeconds selects entries created at least this
	// long ago.
	// Default: 86400
	CompressOlderThanSeconds int64 `yaml:"compress_older_than_seconds"`
}

// CompressOlderThan returns CompressOlderThanSeconds as a duration.
func (m MaintenanceConfig) CompressOlderThan() time.Duration {
	return seconds(m.CompressOlderThanSeconds)
}

// MetricsConfig configures the Prometheus endpoint in serve.
type MetricsConfig struct {
	// ListenAddress serves /metrics. Empty disables the endpoint.
	// Default: 127.0.0.1:9464
	ListenAddress string `yaml:"listen_address"`
}

func seconds(n int64) time.Duration { return time.Duration(n) * time.Second }

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Hot: HotConfig{
			TTLSeconds:                3600,
			MaxSizeBytes:              1 << 20,
			CompressionThresholdBytes: 10 << 10,
		},
		Warm: WarmConfig{
			TTLSeconds:         7 * 24 * 3600,
			CompressionEnabled: true,
		},
		Cold: ColdConfig{
			CompressionEnabled: true,
		},
		Migration: MigrationConfig{
			HotToWarmAccessThreshold: 5,
			WarmToColdAgeSeconds:     3 * 24 * 3600,
			IntervalSeconds:          300,
			PromotionThreshold:       10,
			BatchSize:                100,
		},
		Redis: RedisConfig{
			KeyPrefix:          "contextstore",
			DialTimeoutSeconds: 5,
		},
		Persistent: PersistentConfig{
			Path:     "${CONTEXTSTORE_ROOT}/context.db",
			PoolSize: 10,
		},
		Compression: CompressionConfig{
			Algorithm: "zstd",
		},
		Maintenance: MaintenanceConfig{
			CompressSchedule:         "0 3 * * *",
			CompressOlderThanSeconds: 24 * 3600,
		},
		Metrics: MetricsConfig{
			ListenAddress: "127.0.0.1:9464",
		},
	}
}

// Load loads configuration from the CONTEXTSTORE_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, Load
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your contextstore.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are gone.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides decodes the section matching Environment
// over the current values.
func (c *Config) applyEnvironmentOverrides() error {
	var overrides *yaml.Node

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return nil
	}

	environment := c.Environment
	if err := overrides.Decode(c); err != nil {
		return fmt.Errorf("%s overrides: %w", environment, err)
	}
	// An override section cannot switch environments.
	c.Environment = environment
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// the path and secret fields.
func (c *Config) expandVariables() {
	homeDir, _ := os.UserHomeDir()
	vars := map[string]string{
		"HOME":              homeDir,
		"CONTEXTSTORE_ROOT": filepath.Join(homeDir, ".cache", "contextstore"),
	}
	if root := os.Getenv("CONTEXTSTORE_ROOT"); root != "" {
		vars["CONTEXTSTORE_ROOT"] = root
	}

	c.Persistent.Path = expandVars(c.Persistent.Path, vars)
	c.Redis.Password = expandVars(c.Redis.Password, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors and reports all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"hot.ttl_seconds", c.Hot.TTLSeconds},
		{"hot.max_size_bytes", c.Hot.MaxSizeBytes},
		{"hot.compression_threshold_bytes", c.Hot.CompressionThresholdBytes},
		{"warm.ttl_seconds", c.Warm.TTLSeconds},
		{"migration.hot_to_warm_access_threshold", c.Migration.HotToWarmAccessThreshold},
		{"migration.warm_to_cold_age_seconds", c.Migration.WarmToColdAgeSeconds},
		{"migration.interval_seconds", c.Migration.IntervalSeconds},
		{"migration.promotion_threshold", c.Migration.PromotionThreshold},
		{"migration.batch_size", int64(c.Migration.BatchSize)},
		{"persistent.pool_size", int64(c.Persistent.PoolSize)},
		{"redis.dial_timeout_seconds", c.Redis.DialTimeoutSeconds},
	}
	for _, field := range positive {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", field.name, field.value))
		}
	}

	if c.Persistent.Path == "" {
		errs = append(errs, fmt.Errorf("persistent.path is required"))
	}

	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB))
	}
	if c.Redis.KeyPrefix == "" {
		errs = append(errs, fmt.Errorf("redis.key_prefix is required"))
	}
	if c.Environment == Production && c.Redis.Address == "" {
		errs = append(errs, fmt.Errorf("redis.address is required in production"))
	}

	if _, err := compress.ParseAlgorithm(c.Compression.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("compression.algorithm: %w", err))
	}

	if c.Maintenance.CompressSchedule != "" {
		if _, err := cron.ParseStandard(c.Maintenance.CompressSchedule); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.compress_schedule: %w", err))
		}
		if c.Maintenance.CompressOlderThanSeconds <= 0 {
			errs = append(errs, fmt.Errorf("maintenance.compress_older_than_seconds must be positive, got %d",
				c.Maintenance.CompressOlderThanSeconds))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the parent directory of the database file.
func (c *Config) EnsurePaths() error {
	dir := filepath.Dir(c.Persistent.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
