// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for palaver.
//
// Configuration is TOML (~/.palaver/config.toml) with built-in defaults,
// environment variable overrides, and value clamping. A Manager wraps the
// loaded config behind a read lock and optionally hot-reloads it when the
// file changes on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/palaver/internal/provider"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete palaver configuration.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Request  RequestConfig  `toml:"request"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
}

// ProviderConfig selects the backend and model.
type ProviderConfig struct {
	// Name is a provider ID from the registry ("openrouter", "deepseek",
	// "moonshot").
	Name string `toml:"name"`
	// Model is the model identifier; empty means the provider default.
	Model string `toml:"model"`
	// APIKey is the bearer credential for the selected provider.
	APIKey string `toml:"api_key"`
}

// RequestConfig tunes the transport.
type RequestConfig struct {
	// TimeoutSecs bounds both the initial response and streaming stalls.
	// Clamped to 5-600 seconds.
	TimeoutSecs int `toml:"timeout_secs"`
	// Temperature is the sampling temperature, clamped to 0-2.
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the response length.
	MaxTokens int `toml:"max_tokens"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "files" (one JSON file per conversation) or "sqlite".
	Backend string `toml:"backend"`
	// Dir overrides the data directory; empty means ~/.palaver/sessions.
	Dir string `toml:"dir"`
}

// LogConfig controls the structured log output.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `toml:"level"`
	// File is an optional log destination; empty logs to stderr.
	File string `toml:"file"`
}

const (
	minTimeoutSecs = 5
	maxTimeoutSecs = 600

	// BackendFiles and BackendSQLite are valid storage.backend values.
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:   provider.Default().ID,
			Model:  "",
			APIKey: "",
		},
		Request: RequestConfig{
			TimeoutSecs: 60,
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Storage: StorageConfig{
			Backend: BackendFiles,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the palaver configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".palaver"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions fixes overly permissive modes on the config
// file, which holds the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		return os.Chmod(path, 0600)
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the default config file, falling back to defaults when it
// does not exist. Environment overrides apply last, then values are
// normalized and clamped.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads a specific config file. A missing file is not an
// error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Normalize()
	return cfg, nil
}

// Save writes the configuration to the default TOML file with restrictive
// permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# palaver configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - PALAVER_API_KEY: overrides provider.api_key
//   - PALAVER_PROVIDER: overrides provider.name
//   - PALAVER_MODEL: overrides provider.model
//   - PALAVER_TIMEOUT_SECS: overrides request.timeout_secs
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("PALAVER_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if name := os.Getenv("PALAVER_PROVIDER"); name != "" {
		c.Provider.Name = name
	}
	if modelName := os.Getenv("PALAVER_MODEL"); modelName != "" {
		c.Provider.Model = modelName
	}
	if secs := os.Getenv("PALAVER_TIMEOUT_SECS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil {
			c.Request.TimeoutSecs = n
		}
	}
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize fills in zero values with defaults and clamps out-of-range
// values rather than rejecting them.
func (c *Config) Normalize() {
	defaults := Default()

	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	if _, err := provider.Get(c.Provider.Name); err != nil {
		c.Provider.Name = defaults.Provider.Name
	}

	if c.Request.TimeoutSecs == 0 {
		c.Request.TimeoutSecs = defaults.Request.TimeoutSecs
	}
	if c.Request.TimeoutSecs < minTimeoutSecs {
		c.Request.TimeoutSecs = minTimeoutSecs
	}
	if c.Request.TimeoutSecs > maxTimeoutSecs {
		c.Request.TimeoutSecs = maxTimeoutSecs
	}

	if c.Request.Temperature == 0 {
		c.Request.Temperature = defaults.Request.Temperature
	}
	if c.Request.Temperature < 0 {
		c.Request.Temperature = 0
	}
	if c.Request.Temperature > 2 {
		c.Request.Temperature = 2
	}

	if c.Request.MaxTokens <= 0 {
		c.Request.MaxTokens = defaults.Request.MaxTokens
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendFiles, BackendSQLite:
		c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	default:
		c.Storage.Backend = defaults.Storage.Backend
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = defaults.Log.Level
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
