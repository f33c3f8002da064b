// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

/*
service.go - Run Sync and Cache Merge Engine

Coordinates one sync cycle: ensure the Strava credential is fresh, fetch
activities (exhaustively on first run or when running cache-less,
incrementally from the watermark otherwise), normalize them to run
records, and merge them into the cached list.

Merge rules:
  - New runs are deduplicated by activity id against the cached list.
    Strava's `after` filter is boundary-inclusive in practice, so the
    run that set the watermark can come back on the next incremental
    fetch.
  - The merged list is sorted by calendar date with a stable sort, so
    runs on the same day keep their fetch order.
  - The watermark only moves forward: it becomes the max of its old
    value and the newest merged timestamp.
  - A cycle that discovers nothing new writes nothing.
  - State is committed only after the whole cycle succeeds. A failed
    fetch or normalize never leaves a partial merge behind.

Sync cycles are serialized with a mutex. A second caller blocks until
the in-flight cycle finishes rather than racing it; cycles are fast
enough that coalescing is not worth the complexity.
*/

//nolint:staticcheck // File documentation, not package doc
package runsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/runatlas/internal/logging"
	"github.com/tomtom215/runatlas/internal/metrics"
	"github.com/tomtom215/runatlas/internal/models"
	"github.com/tomtom215/runatlas/internal/store"
	"github.com/tomtom215/runatlas/internal/strava"
)

// Sync modes reported in Result and on metrics.
const (
	ModeExhaustive  = "exhaustive"
	ModeIncremental = "incremental"
)

// tokenSource yields a usable access token, refreshing when needed.
type tokenSource interface {
	EnsureValid(ctx context.Context, cred models.Credential) (models.Credential, bool, error)
}

// activityFetcher pulls raw activities from Strava.
type activityFetcher interface {
	FetchAll(ctx context.Context, accessToken string) ([]models.RawActivity, error)
	FetchAfter(ctx context.Context, accessToken string, after int64) ([]models.RawActivity, error)
}

// Result summarizes one completed sync cycle.
type Result struct {
	Mode      string `json:"mode"`
	NewRuns   int    `json:"new_runs"`
	TotalRuns int    `json:"total_runs"`
	Watermark int64  `json:"watermark"`
}

// Service is the run cache merge engine. A nil store puts the service in
// cache-less mode: state lives only in memory and every cycle fetches
// the full history.
type Service struct {
	store   store.Store
	tokens  tokenSource
	fetcher activityFetcher

	mu        sync.Mutex
	state     models.SyncState
	loaded    bool
	cred      models.Credential
	credReady bool
}

// NewService wires a merge engine over the given store, token source and
// fetcher. The bootstrap credential seeds the engine when the store has
// none persisted, typically a refresh token from config on first boot.
func NewService(st store.Store, tokens tokenSource, fetcher activityFetcher, bootstrap models.Credential) *Service {
	return &Service{
		store:   st,
		tokens:  tokens,
		fetcher: fetcher,
		cred:    bootstrap,
	}
}

// Sync runs one full cycle and returns its summary. Concurrent calls
// serialize; the later caller observes the earlier caller's merge as its
// starting state.
func (s *Service) Sync(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()

	cred, err := s.freshCredential(ctx)
	if err != nil {
		metrics.RecordSyncError("auth")
		return Result{}, err
	}

	state, err := s.loadState(ctx)
	if err != nil {
		metrics.RecordSyncError("store")
		return Result{}, err
	}

	mode := ModeIncremental
	if state.IsEmpty() || s.store == nil {
		mode = ModeExhaustive
	}

	var raw []models.RawActivity
	switch mode {
	case ModeExhaustive:
		raw, err = s.fetcher.FetchAll(ctx, cred.AccessToken)
	default:
		raw, err = s.fetcher.FetchAfter(ctx, cred.AccessToken, state.Watermark)
	}
	if err != nil {
		metrics.RecordSyncError("fetch")
		return Result{}, err
	}

	fresh := strava.NormalizeAll(raw)
	merged, added := merge(state, fresh)

	if added == 0 {
		// Nothing new, nothing written.
		metrics.RecordSync(mode, 0, time.Since(started))
		logging.Debug().Str("mode", mode).Int("total", len(state.Runs)).Msg("[SYNC] Cache already current")
		return Result{Mode: mode, TotalRuns: len(state.Runs), Watermark: state.Watermark}, nil
	}

	if err := s.commitState(ctx, merged); err != nil {
		metrics.RecordSyncError("store")
		return Result{}, err
	}

	metrics.RecordSync(mode, added, time.Since(started))
	logging.Info().
		Str("mode", mode).
		Int("new_runs", added).
		Int("total", len(merged.Runs)).
		Int64("watermark", merged.Watermark).
		Msg("[SYNC] Cycle complete")

	return Result{
		Mode:      mode,
		NewRuns:   added,
		TotalRuns: len(merged.Runs),
		Watermark: merged.Watermark,
	}, nil
}

// merge folds fresh records into the cached state and returns the new
// state plus the count actually added. The input state is not mutated.
func merge(state models.SyncState, fresh []models.RunRecord) (models.SyncState, int) {
	known := make(map[int64]struct{}, len(state.Runs))
	for _, run := range state.Runs {
		known[run.ID] = struct{}{}
	}

	runs := make([]models.RunRecord, len(state.Runs), len(state.Runs)+len(fresh))
	copy(runs, state.Runs)

	watermark := state.Watermark
	added := 0
	for _, run := range fresh {
		if _, dup := known[run.ID]; dup {
			continue
		}
		known[run.ID] = struct{}{}
		runs = append(runs, run)
		added++
		if run.Timestamp > watermark {
			watermark = run.Timestamp
		}
	}

	if added == 0 {
		return state, 0
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Date < runs[j].Date
	})

	return models.SyncState{Runs: runs, Watermark: watermark}, added
}

// Runs returns the current merged state without triggering a sync.
func (s *Service) Runs(ctx context.Context) (models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadState(ctx)
}

// SetCredential installs a new credential, persisting it when a store is
// present. Used by the OAuth callback after a code exchange.
func (s *Service) SetCredential(ctx context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeCredential(ctx, cred)
}

// HasCredential reports whether the engine has any credential to work
// with, persisted or bootstrap.
func (s *Service) HasCredential(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.loadCredential(ctx)
	if err != nil {
		return false
	}
	return !cred.IsZero()
}

// freshCredential loads the current credential, refreshes it through
// the token source, and persists any rotation.
func (s *Service) freshCredential(ctx context.Context) (models.Credential, error) {
	cred, err := s.loadCredential(ctx)
	if err != nil {
		return models.Credential{}, err
	}

	cred, refreshed, err := s.tokens.EnsureValid(ctx, cred)
	if err != nil {
		return models.Credential{}, err
	}
	if refreshed {
		if err := s.storeCredential(ctx, cred); err != nil {
			return models.Credential{}, err
		}
	}
	return cred, nil
}

func (s *Service) loadCredential(ctx context.Context) (models.Credential, error) {
	if s.credReady {
		return s.cred, nil
	}
	if s.store != nil {
		value, found, err := s.store.Get(ctx, store.KeyCredential)
		if err != nil {
			return models.Credential{}, fmt.Errorf("runsync: load credential: %w", err)
		}
		if found {
			var cred models.Credential
			if err := json.Unmarshal(value, &cred); err != nil {
				return models.Credential{}, fmt.Errorf("runsync: decode credential: %w", err)
			}
			s.cred = cred
		}
	}
	s.credReady = true
	return s.cred, nil
}

func (s *Service) storeCredential(ctx context.Context, cred models.Credential) error {
	s.cred = cred
	s.credReady = true
	if s.store == nil {
		return nil
	}
	value, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("runsync: encode credential: %w", err)
	}
	if err := s.store.Set(ctx, store.KeyCredential, value); err != nil {
		return fmt.Errorf("runsync: persist credential: %w", err)
	}
	return nil
}

// loadState returns the cached sync state, reading it from the store on
// first use and from memory afterwards. Callers hold s.mu.
func (s *Service) loadState(ctx context.Context) (models.SyncState, error) {
	if s.loaded || s.store == nil {
		return s.state, nil
	}

	runsValue, found, err := s.store.Get(ctx, store.KeyRuns)
	if err != nil {
		return models.SyncState{}, fmt.Errorf("runsync: load runs: %w", err)
	}
	if found {
		if err := json.Unmarshal(runsValue, &s.state.Runs); err != nil {
			return models.SyncState{}, fmt.Errorf("runsync: decode runs: %w", err)
		}
	}

	wmValue, found, err := s.store.Get(ctx, store.KeyWatermark)
	if err != nil {
		return models.SyncState{}, fmt.Errorf("runsync: load watermark: %w", err)
	}
	if found {
		if err := json.Unmarshal(wmValue, &s.state.Watermark); err != nil {
			return models.SyncState{}, fmt.Errorf("runsync: decode watermark: %w", err)
		}
	}

	s.loaded = true
	return s.state, nil
}

// commitState writes the merged state through to the store and memory.
// The in-memory copy only updates after both writes succeed.
func (s *Service) commitState(ctx context.Context, state models.SyncState) error {
	if s.store != nil {
		runsValue, err := json.Marshal(state.Runs)
		if err != nil {
			return fmt.Errorf("runsync: encode runs: %w", err)
		}
		wmValue, err := json.Marshal(state.Watermark)
		if err != nil {
			return fmt.Errorf("runsync: encode watermark: %w", err)
		}
		if err := s.store.Set(ctx, store.KeyRuns, runsValue); err != nil {
			return fmt.Errorf("runsync: persist runs: %w", err)
		}
		if err := s.store.Set(ctx, store.KeyWatermark, wmValue); err != nil {
			return fmt.Errorf("runsync: persist watermark: %w", err)
		}
	}

	s.state = state
	s.loaded = true
	return nil
}

// IsAuthError reports whether a sync failure came from the credential
// layer, letting the API map it to 401 instead of 502.
func IsAuthError(err error) bool {
	return errors.Is(err, strava.ErrAuthRefreshFailed) || errors.Is(err, strava.ErrNoCredential)
}
