// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

package strava

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/logging"
	"github.com/tomtom215/runatlas/internal/models"
)

// TokenManager keeps a Strava OAuth credential valid. It is stateless per
// call: EnsureValid takes a credential and returns a (possibly refreshed)
// credential, and the caller decides where the result is persisted. The
// same manager therefore serves both a store-backed singleton deployment
// and a stateless per-request deployment where the credential travels with
// the request.
type TokenManager struct {
	client       *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	margin       time.Duration

	// now is stubbed in tests
	now func() time.Time
}

// tokenResponse is the Strava OAuth token endpoint response shape, shared
// by the refresh-token and authorization-code grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

// NewTokenManager creates a token manager from Strava configuration.
func NewTokenManager(cfg config.StravaConfig) *TokenManager {
	return &TokenManager{
		client:       &http.Client{Timeout: cfg.Timeout},
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		margin:       cfg.RefreshMargin,
		now:          time.Now,
	}
}

// EnsureValid returns a credential whose access token is valid for at
// least the configured margin. When the current token is still fresh the
// credential is returned unchanged with no network call; otherwise a
// refresh-token exchange is performed and the response is merged over the
// prior credential. The second return reports whether a refresh happened,
// so callers know when to persist.
func (m *TokenManager) EnsureValid(ctx context.Context, cred models.Credential) (models.Credential, bool, error) {
	if cred.RefreshToken == "" {
		return cred, false, fmt.Errorf("%w: credential has no refresh token", ErrNoCredential)
	}

	if cred.ValidAt(m.now(), m.margin) {
		return cred, false, nil
	}

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	resp, err := m.exchange(ctx, form)
	if err != nil {
		return cred, false, fmt.Errorf("%w: %v", ErrAuthRefreshFailed, err)
	}

	refreshed := cred.MergeRefresh(m.toCredential(resp))
	logging.Debug().Int64("expires_at", refreshed.ExpiresAt).Msg("Strava token refreshed")
	return refreshed, true, nil
}

// ExchangeCode performs the authorization-code grant after the OAuth
// consent redirect. The consent UI itself lives outside this system; only
// token issuance is handled here.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (models.Credential, error) {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	resp, err := m.exchange(ctx, form)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", ErrAuthRefreshFailed, err)
	}

	return m.toCredential(resp), nil
}

// exchange posts a form to the token endpoint and decodes the response.
func (m *TokenManager) exchange(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("token response carries no access token")
	}

	return &result, nil
}

// toCredential converts a token response to a credential, deriving the
// expiry from expires_in when the provider omits the absolute expires_at.
func (m *TokenManager) toCredential(resp *tokenResponse) models.Credential {
	expiresAt := resp.ExpiresAt
	if expiresAt == 0 && resp.ExpiresIn > 0 {
		expiresAt = m.now().Unix() + resp.ExpiresIn
	}

	return models.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}
