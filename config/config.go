// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration. It is built once at startup
// and passed explicitly to the components that need it; nothing reads it as
// an ambient global.
type Config struct {
	// UserAgent is sent on every outgoing request.
	UserAgent string `json:"user_agent"`
	// BaseURL is the root of the video platform (override for testing).
	BaseURL string `json:"base_url"`
	// ConsentURL is the consent-save endpoint (override for testing).
	ConsentURL string `json:"consent_url"`

	// RequestTimeout is the per-request timeout.
	RequestTimeout time.Duration `json:"request_timeout"`
	// MaxRetries is the number of retries after a timed-out request.
	MaxRetries int `json:"max_retries"`
	// RetryDelay is the fixed pause between retries of a timed-out request.
	RetryDelay time.Duration `json:"retry_delay"`
	// PageDelay is the default pause between continuation pages.
	PageDelay time.Duration `json:"page_delay"`

	// Language optionally overrides the request locale (e.g. "vi").
	Language string `json:"language"`
	// OutputDir is where batch downloads write their JSONL files.
	OutputDir string `json:"output_dir"`
	// DataAPIKey enables the Data API catalog lister when set.
	DataAPIKey string `json:"data_api_key"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/79.0.3945.130 Safari/537.36",
		BaseURL:        "https://www.youtube.com",
		ConsentURL:     "https://consent.youtube.com/save",
		RequestTimeout: 60 * time.Second,
		MaxRetries:     5,
		RetryDelay:     20 * time.Second,
		PageDelay:      100 * time.Millisecond,
		OutputDir:      "comments",
	}
}

// Load loads configuration from environment variables, config file, and
// applies defaults. Priority: env vars > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFile(); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %v", c.RetryDelay)
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page_delay must not be negative, got %v", c.PageDelay)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	return nil
}

// findConfigFile looks for the config file in the working directory and the
// user config directory.
func findConfigFile() string {
	candidates := []string{"ytcomments.json"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ytcomments", "ytcomments.json"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFile merges settings from a JSON config file.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Durations in the file are strings like "30s".
	var raw struct {
		UserAgent      string `json:"user_agent"`
		BaseURL        string `json:"base_url"`
		ConsentURL     string `json:"consent_url"`
		RequestTimeout string `json:"request_timeout"`
		MaxRetries     *int   `json:"max_retries"`
		RetryDelay     string `json:"retry_delay"`
		PageDelay      string `json:"page_delay"`
		Language       string `json:"language"`
		OutputDir      string `json:"output_dir"`
		DataAPIKey     string `json:"data_api_key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if raw.UserAgent != "" {
		c.UserAgent = raw.UserAgent
	}
	if raw.BaseURL != "" {
		c.BaseURL = raw.BaseURL
	}
	if raw.ConsentURL != "" {
		c.ConsentURL = raw.ConsentURL
	}
	if raw.MaxRetries != nil {
		c.MaxRetries = *raw.MaxRetries
	}
	if raw.Language != "" {
		c.Language = raw.Language
	}
	if raw.OutputDir != "" {
		c.OutputDir = raw.OutputDir
	}
	if raw.DataAPIKey != "" {
		c.DataAPIKey = raw.DataAPIKey
	}
	for _, d := range []struct {
		value string
		dst   *time.Duration
	}{
		{raw.RequestTimeout, &c.RequestTimeout},
		{raw.RetryDelay, &c.RetryDelay},
		{raw.PageDelay, &c.PageDelay},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parse duration %q in %s: %w", d.value, path, err)
		}
		*d.dst = parsed
	}
	return nil
}

// loadEnv applies environment variable overrides.
func (c *Config) loadEnv() {
	if v := os.Getenv("YTC_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("YTC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("YTC_CONSENT_URL"); v != "" {
		c.ConsentURL = v
	}
	if v := os.Getenv("YTC_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("YTC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("YTC_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RetryDelay = d
		}
	}
	if v := os.Getenv("YTC_PAGE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PageDelay = d
		}
	}
	if v := os.Getenv("YTC_LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("YTC_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("YTC_DATA_API_KEY"); v != "" {
		c.DataAPIKey = v
	}
}
