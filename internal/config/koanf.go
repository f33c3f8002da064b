// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/runatlas/config.yaml",
	"/etc/runatlas/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3001,
			Timeout: 30 * time.Second,
		},
		Strava: StravaConfig{
			ClientID:      "",
			ClientSecret:  "",
			RefreshToken:  "",
			BaseURL:       "https://www.strava.com/api/v3",
			TokenURL:      "https://www.strava.com/oauth/token",
			Timeout:       15 * time.Second,
			RefreshMargin: 5 * time.Minute,
		},
		Sync: SyncConfig{
			PageSize:      200, // Strava maximum
			ParallelPages: 5,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
		Geocode: GeocodeConfig{
			BaseURL:         "https://nominatim.openstreetmap.org",
			UserAgent:       "",
			BatchSize:       5,
			BatchDelay:      500 * time.Millisecond,
			Timeout:         8 * time.Second,
			MaxLookups:      0,
			BreakerFailures: 5,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "/data/runatlas",
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any setting
//
// Precedence is ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// STRAVA_CLIENT_ID -> strava.client_id, HTTP_PORT -> server.port
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars come in as strings; known slice fields need splitting
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - STRAVA_CLIENT_ID -> strava.client_id
//   - GEOCODE_USER_AGENT -> geocode.user_agent
//   - HTTP_PORT -> server.port
//   - STORE_PATH -> store.path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Strava mappings
		"strava_client_id":      "strava.client_id",
		"strava_client_secret":  "strava.client_secret",
		"strava_refresh_token":  "strava.refresh_token",
		"strava_base_url":       "strava.base_url",
		"strava_token_url":      "strava.token_url",
		"strava_timeout":        "strava.timeout",
		"strava_refresh_margin": "strava.refresh_margin",

		// Sync mappings
		"sync_page_size":      "sync.page_size",
		"sync_parallel_pages": "sync.parallel_pages",
		"sync_retry_attempts": "sync.retry_attempts",
		"sync_retry_delay":    "sync.retry_delay",

		// Geocode mappings
		"geocode_base_url":         "geocode.base_url",
		"geocode_user_agent":       "geocode.user_agent",
		"geocode_batch_size":       "geocode.batch_size",
		"geocode_batch_delay":      "geocode.batch_delay",
		"geocode_timeout":          "geocode.timeout",
		"geocode_max_lookups":      "geocode.max_lookups",
		"geocode_breaker_failures": "geocode.breaker_failures",

		// Store mappings
		"store_enabled": "store.enabled",
		"store_path":    "store.path",

		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Security mappings
		"cors_origins":        "security.cors_origins",
		"rate_limit_reqs":     "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"rate_limit_disabled": "security.rate_limit_disabled",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are dropped rather than guessed at, so unrelated
	// environment noise (PATH, HOME, ...) never lands in the config tree.
	return ""
}
