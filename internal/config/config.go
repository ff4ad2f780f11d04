// Package config loads client settings from a YAML file, a .env file and
// ARTICUBE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARTICUBE_"

// Config holds client settings.
type Config struct {
	APIURL           string `yaml:"api_url"`
	Token            string `yaml:"token"`
	DBPath           string `yaml:"db_path"`
	LogPath          string `yaml:"log_path"`
	LogLevel         string `yaml:"log_level"` // debug, info, warn, error
	RequestTimeout   string `yaml:"request_timeout"`
	HistoryLimit     int    `yaml:"history_limit"`
	RecentLimit      int    `yaml:"recent_limit"`
	SaveToHistory    bool   `yaml:"save_to_history"`
	ScrollDebounce   string `yaml:"scroll_debounce"`
	RestoreDelay     string `yaml:"restore_delay"`
	ContentCacheSize int    `yaml:"content_cache_size"`
}

// Dir returns the per-user articube directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "articube")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIURL:           "http://localhost:8000",
		DBPath:           filepath.Join(Dir(), "articube.sqlite"),
		LogPath:          filepath.Join(Dir(), "articube.log"),
		LogLevel:         "info",
		RequestTimeout:   "60s",
		HistoryLimit:     10,
		RecentLimit:      5,
		SaveToHistory:    true,
		ScrollDebounce:   "250ms",
		RestoreDelay:     "1s",
		ContentCacheSize: 64,
	}
}

// Load reads the YAML file at path over the defaults, then applies .env
// and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// The file may hold a bearer token.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"API_URL":         &c.APIURL,
		"TOKEN":           &c.Token,
		"DB_PATH":         &c.DBPath,
		"LOG_PATH":        &c.LogPath,
		"LOG_LEVEL":       &c.LogLevel,
		"REQUEST_TIMEOUT": &c.RequestTimeout,
		"SCROLL_DEBOUNCE": &c.ScrollDebounce,
		"RESTORE_DELAY":   &c.RestoreDelay,
	}
	for key, dst := range str {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HISTORY_LIMIT":      &c.HistoryLimit,
		"RECENT_LIMIT":       &c.RecentLimit,
		"CONTENT_CACHE_SIZE": &c.ContentCacheSize,
	}
	for key, dst := range ints {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, key, v, err)
		}
		*dst = n
	}

	if v := os.Getenv(EnvPrefix + "SAVE_TO_HISTORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSAVE_TO_HISTORY %q: %w", EnvPrefix, v, err)
		}
		c.SaveToHistory = b
	}
	return nil
}

// Validate checks the settings the client cannot run without.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url not configured (set %sAPI_URL or api_url in %s)", EnvPrefix, DefaultPath())
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 50 {
		return fmt.Errorf("history_limit must be between 1 and 50, got %d", c.HistoryLimit)
	}
	if c.ContentCacheSize < 1 {
		return fmt.Errorf("content_cache_size must be positive, got %d", c.ContentCacheSize)
	}
	return nil
}

// GetRequestTimeout returns the per-request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 60*time.Second)
}

// GetScrollDebounce returns the reading progress write debounce.
func (c *Config) GetScrollDebounce() time.Duration {
	return parseDuration(c.ScrollDebounce, 250*time.Millisecond)
}

// GetRestoreDelay returns the delay before a saved position is restored.
func (c *Config) GetRestoreDelay() time.Duration {
	return parseDuration(c.RestoreDelay, time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
