// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package main is the entry point for the Run Atlas server.
//
// Run Atlas is a self-hosted backend for a personal running dashboard.
// It syncs run activities from the Strava API into a local cache,
// normalizes them into dashboard-ready records, and reverse-geocodes
// run start points through OSM Nominatim with a persistent location
// cache.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Store: Open the BadgerDB cache (optional, in-memory when pathless)
//  3. Strava: Token manager and paginated activity fetcher
//  4. Sync Engine: Run cache merge engine with watermark tracking
//  5. Geocode Engine: Nominatim resolver with politeness pacing
//  6. HTTP Server: REST API plus Prometheus /metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (see .env.example)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// Minimum viable environment:
//
//	export STRAVA_CLIENT_ID=12345
//	export STRAVA_CLIENT_SECRET=your-client-secret
//	export STRAVA_REFRESH_TOKEN=your-refresh-token
//	export GEOCODE_USER_AGENT="runatlas/1.0 (you@example.com)"
//	./runatlas
//
// # Cache-less Mode
//
// With STORE_ENABLED=false the server keeps all state in memory and
// refetches the full activity history on every sync cycle. Useful for
// ephemeral deployments; expensive against the Strava rate limits.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the Badger store
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/runatlas/internal/api"
	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/geocode"
	"github.com/tomtom215/runatlas/internal/logging"
	"github.com/tomtom215/runatlas/internal/models"
	"github.com/tomtom215/runatlas/internal/runsync"
	"github.com/tomtom215/runatlas/internal/store"
	"github.com/tomtom215/runatlas/internal/strava"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("port", cfg.Server.Port).
		Bool("store_enabled", cfg.Store.Enabled).
		Msg("Starting Run Atlas")

	var st store.Store
	if cfg.Store.Enabled {
		badgerStore, err := store.OpenBadger(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
		}
		defer func() {
			if err := badgerStore.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing store")
			}
		}()
		st = badgerStore
		logging.Info().Str("path", cfg.Store.Path).Msg("Store opened")
	} else {
		logging.Warn().Msg("Store disabled, running cache-less: every sync refetches full history")
	}

	tokens := strava.NewTokenManager(cfg.Strava)
	client := strava.NewClient(cfg.Strava, cfg.Sync)

	bootstrap := models.Credential{RefreshToken: cfg.Strava.RefreshToken}
	syncService := runsync.NewService(st, tokens, client, bootstrap)

	nominatim := geocode.NewNominatimClient(cfg.Geocode)
	resolver := geocode.NewResolver(st, nominatim, cfg.Geocode)

	handler := api.NewHandler(syncService, resolver, tokens, cfg.Store.Enabled)
	router := api.NewRouter(handler, cfg.Security)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		logging.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed, forcing close")
		_ = server.Close()
	}

	logging.Info().Msg("Run Atlas stopped")
}
