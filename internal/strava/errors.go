// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package strava talks to the Strava v3 API: OAuth token lifecycle,
// paginated activity listing, and normalization of raw activities into
// canonical run records.
package strava

import "errors"

// Error taxonomy for the sync path. Callers branch on these with
// errors.Is; everything else that goes wrong is wrapped into one of them
// before leaving the package.
var (
	// ErrAuthRefreshFailed means the token refresh exchange was rejected.
	// This is terminal for the current session: a rejected refresh token
	// stays rejected until the user re-authorizes, so callers must treat
	// it as "not authenticated" rather than "temporarily unavailable".
	ErrAuthRefreshFailed = errors.New("strava token refresh failed")

	// ErrFetchFailed means an activity page fetch failed or timed out.
	// The whole sync operation aborts; no partial results are kept, so a
	// previously cached run list is never corrupted by a half-synced fetch.
	ErrFetchFailed = errors.New("strava activity fetch failed")

	// ErrNoCredential means no credential set is available at all.
	ErrNoCredential = errors.New("no strava credential available")
)
