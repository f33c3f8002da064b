// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

/*
client.go - Strava Activity Pagination

Two fetch modes built on one page primitive:

  - FetchAll: exhaustive fetch for a cold cache. Pages go out in parallel
    batches (default 5); results are inspected strictly in page order and
    the walk stops at the first page shorter than the page size, keeping
    that page's records and everything before it. Pages after the short
    page inside the same batch were already requested and are discarded.

  - FetchAfter: incremental fetch for a warm cache. Pages go out one at a
    time with the server-side `after` filter; the expected volume is 0-2
    pages, so sequential requests keep the stop decision trivially ordered
    and are not worth parallelizing.

Either mode aborts on the first page error: a half-fetched activity list
must never reach the merge, so there is no partial-result fallback. Each
page request retries transient failures with exponential backoff before
the operation as a whole is declared failed.
*/

//nolint:staticcheck // File documentation, not package doc
package strava

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/logging"
	"github.com/tomtom215/runatlas/internal/metrics"
	"github.com/tomtom215/runatlas/internal/models"
)

// Client fetches athlete activities from the Strava v3 API.
type Client struct {
	baseURL       string
	client        *http.Client
	pageSize      int
	parallelPages int
	retryAttempts int
	retryDelay    time.Duration
}

// NewClient creates a Strava API client from configuration.
func NewClient(cfg config.StravaConfig, syncCfg config.SyncConfig) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		client:        &http.Client{Timeout: cfg.Timeout},
		pageSize:      syncCfg.PageSize,
		parallelPages: syncCfg.ParallelPages,
		retryAttempts: syncCfg.RetryAttempts,
		retryDelay:    syncCfg.RetryDelay,
	}
}

// pageResult pairs one page's activities with its fetch error.
type pageResult struct {
	activities []models.RawActivity
	err        error
}

// FetchAll retrieves the athlete's complete activity history.
func (c *Client) FetchAll(ctx context.Context, accessToken string) ([]models.RawActivity, error) {
	var all []models.RawActivity
	page := 1

	for {
		results := make([]pageResult, c.parallelPages)
		done := make(chan int, c.parallelPages)

		for i := 0; i < c.parallelPages; i++ {
			go func(i int) {
				acts, err := c.fetchPageWithRetry(ctx, accessToken, page+i, 0)
				results[i] = pageResult{activities: acts, err: err}
				done <- i
			}(i)
		}
		for i := 0; i < c.parallelPages; i++ {
			<-done
		}

		// Inspect strictly in page order so the stop decision never
		// depends on out-of-order data.
		for i := 0; i < c.parallelPages; i++ {
			if results[i].err != nil {
				return nil, fmt.Errorf("%w: page %d: %v", ErrFetchFailed, page+i, results[i].err)
			}

			all = append(all, results[i].activities...)
			if len(results[i].activities) < c.pageSize {
				logging.Debug().Int("pages", page+i).Int("activities", len(all)).Msg("Exhaustive fetch complete")
				return all, nil
			}
		}

		page += c.parallelPages
	}
}

// FetchAfter retrieves only activities that started after the given epoch
// watermark, oldest pages first as Strava returns them.
func (c *Client) FetchAfter(ctx context.Context, accessToken string, after int64) ([]models.RawActivity, error) {
	var all []models.RawActivity

	for page := 1; ; page++ {
		activities, err := c.fetchPageWithRetry(ctx, accessToken, page, after)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrFetchFailed, page, err)
		}

		all = append(all, activities...)
		if len(activities) < c.pageSize {
			break
		}
	}

	logging.Debug().Int64("after", after).Int("activities", len(all)).Msg("Incremental fetch complete")
	return all, nil
}

// fetchPageWithRetry wraps fetchPage with exponential backoff for
// transient upstream failures. The context cancels backoff waits.
func (c *Client) fetchPageWithRetry(ctx context.Context, accessToken string, page int, after int64) ([]models.RawActivity, error) {
	var activities []models.RawActivity
	var err error
	delay := c.retryDelay

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		activities, err = c.fetchPage(ctx, accessToken, page, after)
		if err == nil {
			return activities, nil
		}

		if attempt < c.retryAttempts-1 {
			logging.Warn().Err(err).Int("page", page).Int("attempt", attempt+1).Dur("delay", delay).Msg("Page fetch retry")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("max retry attempts reached: %w", err)
}

// fetchPage requests one page of athlete activities.
func (c *Client) fetchPage(ctx context.Context, accessToken string, page int, after int64) ([]models.RawActivity, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(c.pageSize))
	query.Set("page", strconv.Itoa(page))
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}

	reqURL := fmt.Sprintf("%s/athlete/activities?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("activities request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("activities endpoint returned status %d", resp.StatusCode)
	}

	var activities []models.RawActivity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}

	metrics.RecordPageFetch()
	return activities, nil
}
