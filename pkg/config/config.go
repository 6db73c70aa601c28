package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for postharvest
type Config struct {
	// Batch job settings
	Collector CollectorConfig `yaml:"collector" json:"collector"`

	// Where per-key stores, checkpoints and merged datasets live
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Retry budget for transient fetch and storage failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Request pacing against the content API
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Bluesky account and endpoint
	Bluesky BlueskyConfig `yaml:"bluesky" json:"bluesky"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CollectorConfig holds batch run configuration
type CollectorConfig struct {
	SessionName      string        `yaml:"session_name" json:"session_name"`
	Platform         string        `yaml:"platform" json:"platform"`
	Keywords         []string      `yaml:"keywords" json:"keywords"`
	MaxPerKeyword    int           `yaml:"max_per_keyword" json:"max_per_keyword"`
	PageSize         int           `yaml:"page_size" json:"page_size"`
	SaveInterval     int           `yaml:"save_interval" json:"save_interval"`
	PauseBetweenKeys time.Duration `yaml:"pause_between_keys" json:"pause_between_keys"`
	Format           string        `yaml:"format" json:"format"`
	Merge            bool          `yaml:"merge" json:"merge"`
	RetryFailed      bool          `yaml:"retry_failed" json:"retry_failed"`
}

// StorageConfig holds artifact directories
type StorageConfig struct {
	CacheDir      string `yaml:"cache_dir" json:"cache_dir"`
	CheckpointDir string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	MergedDir     string `yaml:"merged_dir" json:"merged_dir"`
}

// RetryConfig holds retry and backoff settings
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier      float64       `yaml:"multiplier" json:"multiplier"`
	Jitter          float64       `yaml:"jitter" json:"jitter"`
	StorageAttempts int           `yaml:"storage_attempts" json:"storage_attempts"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// BlueskyConfig holds Bluesky-specific configuration
type BlueskyConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Handle      string        `yaml:"handle" json:"handle"`
	AppPassword string        `yaml:"app_password" json:"-"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			SessionName:      "default",
			Platform:         "bluesky",
			MaxPerKeyword:    5000,
			PageSize:         25,
			SaveInterval:     50,
			PauseBetweenKeys: 5 * time.Second,
			Format:           "csv",
			Merge:            true,
		},
		Storage: StorageConfig{
			CacheDir:      "./data/cache",
			CheckpointDir: "./data/checkpoints",
			MergedDir:     "./data/merged",
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BaseDelay:       2 * time.Second,
			MaxDelay:        30 * time.Second,
			Multiplier:      2.0,
			Jitter:          0.1,
			StorageAttempts: 3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Bluesky: BlueskyConfig{
			BaseURL: "https://bsky.social",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if name := os.Getenv("POSTHARVEST_SESSION_NAME"); name != "" {
		c.Collector.SessionName = name
	}
	if platform := os.Getenv("POSTHARVEST_PLATFORM"); platform != "" {
		c.Collector.Platform = platform
	}
	if limit := os.Getenv("POSTHARVEST_MAX_PER_KEYWORD"); limit != "" {
		val, err := strconv.Atoi(limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("POSTHARVEST_MAX_PER_KEYWORD: %w", err))
		} else {
			c.Collector.MaxPerKeyword = val
		}
	}
	if pause := os.Getenv("POSTHARVEST_PAUSE_BETWEEN_KEYS"); pause != "" {
		d, err := parseSeconds(pause)
		if err != nil {
			errs = append(errs, fmt.Errorf("POSTHARVEST_PAUSE_BETWEEN_KEYS: %w", err))
		} else {
			c.Collector.PauseBetweenKeys = d
		}
	}
	if format := os.Getenv("POSTHARVEST_CACHE_TYPE"); format != "" {
		c.Collector.Format = format
	}
	if interval := os.Getenv("POSTHARVEST_SAVE_INTERVAL"); interval != "" {
		val, err := strconv.Atoi(interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("POSTHARVEST_SAVE_INTERVAL: %w", err))
		} else {
			c.Collector.SaveInterval = val
		}
	}
	if dir := os.Getenv("POSTHARVEST_CACHE_DIR"); dir != "" {
		c.Storage.CacheDir = dir
	}
	if dir := os.Getenv("POSTHARVEST_CHECKPOINT_DIR"); dir != "" {
		c.Storage.CheckpointDir = dir
	}
	if dir := os.Getenv("POSTHARVEST_MERGED_DIR"); dir != "" {
		c.Storage.MergedDir = dir
	}
	if rpm := os.Getenv("POSTHARVEST_REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			errs = append(errs, fmt.Errorf("POSTHARVEST_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	// Credentials keep the names the Bluesky tooling uses
	if handle := os.Getenv("BLUESKY_HANDLE"); handle != "" {
		c.Bluesky.Handle = handle
	} else if handle := os.Getenv("BLUESKY_USERNAME"); handle != "" {
		c.Bluesky.Handle = handle
	}
	if password := os.Getenv("BLUESKY_APP_PASSWORD"); password != "" {
		c.Bluesky.AppPassword = password
	}

	if logLevel := os.Getenv("POSTHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return errors.Join(errs...)
}

// parseSeconds accepts either a Go duration ("1m30s") or a bare number of seconds ("2.5")
func parseSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".postharvest.yaml",
		".postharvest.yml",
		filepath.Join(home, ".config", "postharvest", "config.yaml"),
		filepath.Join(home, ".config", "postharvest", "config.yml"),
		filepath.Join(home, ".postharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Collector.SessionName) == "" {
		errs = append(errs, errors.New("session name is required"))
	}
	if strings.TrimSpace(c.Collector.Platform) == "" {
		errs = append(errs, errors.New("platform is required"))
	}
	if c.Collector.MaxPerKeyword <= 0 {
		errs = append(errs, errors.New("max per keyword must be positive"))
	}
	if c.Collector.PageSize <= 0 || c.Collector.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}
	if c.Collector.SaveInterval < 0 {
		errs = append(errs, errors.New("save interval cannot be negative"))
	}
	if c.Collector.PauseBetweenKeys < 0 {
		errs = append(errs, errors.New("pause between keys cannot be negative"))
	}
	validFormats := map[string]bool{
		"csv": true, "jsonl": true, "json": true, "ndjson": true, "sqlite": true, "sqlite3": true, "db": true,
	}
	if !validFormats[strings.ToLower(c.Collector.Format)] {
		errs = append(errs, fmt.Errorf("invalid cache format %q", c.Collector.Format))
	}

	if c.Storage.CacheDir == "" {
		errs = append(errs, errors.New("cache directory is required"))
	}
	if c.Storage.CheckpointDir == "" {
		errs = append(errs, errors.New("checkpoint directory is required"))
	}
	if c.Storage.MergedDir == "" {
		errs = append(errs, errors.New("merged directory is required"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.StorageAttempts <= 0 {
		errs = append(errs, errors.New("storage attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Bluesky.BaseURL == "" {
		errs = append(errs, errors.New("bluesky base URL is required"))
	}
	if c.Bluesky.Timeout <= 0 {
		errs = append(errs, errors.New("bluesky timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["session"].(string); ok && v != "" {
		c.Collector.SessionName = v
	}
	if v, ok := flags["platform"].(string); ok && v != "" {
		c.Collector.Platform = v
	}
	if v, ok := flags["limit"].(int); ok && v > 0 {
		c.Collector.MaxPerKeyword = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.Collector.PageSize = v
	}
	if v, ok := flags["save-interval"].(int); ok {
		c.Collector.SaveInterval = v
	}
	if v, ok := flags["pause"].(time.Duration); ok {
		c.Collector.PauseBetweenKeys = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Collector.Format = v
	}
	if v, ok := flags["merge"].(bool); ok {
		c.Collector.Merge = v
	}
	if v, ok := flags["retry-failed"].(bool); ok {
		c.Collector.RetryFailed = v
	}
	if v, ok := flags["cache-dir"].(string); ok && v != "" {
		c.Storage.CacheDir = v
	}
	if v, ok := flags["checkpoint-dir"].(string); ok && v != "" {
		c.Storage.CheckpointDir = v
	}
	if v, ok := flags["merged-dir"].(string); ok && v != "" {
		c.Storage.MergedDir = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".postharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
