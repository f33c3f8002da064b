// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package models

import "time"

// Credential is the Strava OAuth credential set. It is owned by the token
// manager: only a successful refresh or authorization-code exchange mutates
// it, and the caller persists the result so tokens survive restarts.
//
// ExpiresAt is epoch seconds, exactly as Strava reports it.
type Credential struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	ExpiresAt    int64  `json:"expires_at" validate:"required,gt=0"`
}

// IsZero reports whether the credential is unset.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.ExpiresAt == 0
}

// ValidAt reports whether the access token is still usable at the given
// instant with the given safety margin. A token expiring within the margin
// counts as invalid so callers refresh before it actually lapses.
func (c Credential) ValidAt(now time.Time, margin time.Duration) bool {
	return now.Add(margin).Unix() < c.ExpiresAt
}

// MergeRefresh overlays a refresh response onto the prior credential.
// Providers may rotate the refresh token; when the response omits one, the
// prior refresh token is preserved rather than wiped.
func (c Credential) MergeRefresh(resp Credential) Credential {
	merged := c
	if resp.AccessToken != "" {
		merged.AccessToken = resp.AccessToken
	}
	if resp.RefreshToken != "" {
		merged.RefreshToken = resp.RefreshToken
	}
	if resp.ExpiresAt != 0 {
		merged.ExpiresAt = resp.ExpiresAt
	}
	return merged
}
