// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package config loads and validates Run Atlas configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Strava   StravaConfig   `koanf:"strava"`
	Sync     SyncConfig     `koanf:"sync"`
	Geocode  GeocodeConfig  `koanf:"geocode"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// StravaConfig holds upstream Strava API settings.
//
// RefreshToken is an optional bootstrap credential: when set and no
// credential exists in the store yet, the server starts in stored-token
// mode without requiring the OAuth callback first.
type StravaConfig struct {
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	RefreshToken string        `koanf:"refresh_token"`
	BaseURL      string        `koanf:"base_url"`
	TokenURL     string        `koanf:"token_url"`
	Timeout      time.Duration `koanf:"timeout"`

	// RefreshMargin is how close to expiry a token may get before it is
	// proactively refreshed.
	RefreshMargin time.Duration `koanf:"refresh_margin"`
}

// SyncConfig holds activity synchronization settings.
//
// PageSize and ParallelPages are tuned to the Strava API: 200 is the
// maximum per_page the activities endpoint honors, and 5 concurrent pages
// keeps an exhaustive first sync fast without tripping upstream rate
// limits.
type SyncConfig struct {
	PageSize      int           `koanf:"page_size"`
	ParallelPages int           `koanf:"parallel_pages"`
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// GeocodeConfig holds reverse-geocoding settings for Nominatim.
//
// BatchDelay is a hard external constraint, not a performance knob:
// Nominatim's acceptable-use policy requires spacing out requests, and
// exceeding it risks the calling IP being blocked from the free service.
// UserAgent is mandatory for the same reason.
type GeocodeConfig struct {
	BaseURL    string        `koanf:"base_url"`
	UserAgent  string        `koanf:"user_agent"`
	BatchSize  int           `koanf:"batch_size"`
	BatchDelay time.Duration `koanf:"batch_delay"`
	Timeout    time.Duration `koanf:"timeout"`

	// MaxLookups caps how many distinct uncached coordinates one Resolve
	// call will send upstream, bounding total wall-clock time under the
	// rate limit. 0 means unlimited.
	MaxLookups int `koanf:"max_lookups"`

	// BreakerFailures is the consecutive-failure count that trips the
	// circuit breaker protecting Nominatim.
	BreakerFailures int `koanf:"breaker_failures"`
}

// StoreConfig holds persistent cache settings.
// When Enabled is false the engines run cache-less: every runs request is
// an exhaustive fetch and nothing is persisted.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// SecurityConfig holds API hardening settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for consistency and required values.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateStrava,
		c.validateSync,
		c.validateGeocode,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateStrava() error {
	if c.Strava.ClientID == "" {
		return fmt.Errorf("strava.client_id is required")
	}
	if c.Strava.ClientSecret == "" {
		return fmt.Errorf("strava.client_secret is required")
	}
	if c.Strava.Timeout <= 0 {
		return fmt.Errorf("strava.timeout must be positive, got %s", c.Strava.Timeout)
	}
	if c.Strava.RefreshMargin < 0 {
		return fmt.Errorf("strava.refresh_margin must not be negative, got %s", c.Strava.RefreshMargin)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 200 {
		return fmt.Errorf("sync.page_size must be 1-200 (Strava maximum), got %d", c.Sync.PageSize)
	}
	if c.Sync.ParallelPages < 1 {
		return fmt.Errorf("sync.parallel_pages must be at least 1, got %d", c.Sync.ParallelPages)
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be at least 1, got %d", c.Sync.RetryAttempts)
	}
	return nil
}

func (c *Config) validateGeocode() error {
	if c.Geocode.UserAgent == "" {
		return fmt.Errorf("geocode.user_agent is required (Nominatim acceptable-use policy)")
	}
	if c.Geocode.BatchSize < 1 {
		return fmt.Errorf("geocode.batch_size must be at least 1, got %d", c.Geocode.BatchSize)
	}
	if c.Geocode.BatchDelay < 500*time.Millisecond {
		return fmt.Errorf("geocode.batch_delay must be at least 500ms (Nominatim rate limit), got %s", c.Geocode.BatchDelay)
	}
	return nil
}
