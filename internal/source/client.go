// Package source implements the provider feed client. Transient failures
// (timeouts, 429, 5xx) are retried here with backoff; an error escaping
// this package is fatal for the calling sync session.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
	"feedsync/internal/sync"
)

// Client fetches message pages from the provider's REST feed. It is
// stateless per request, so the same page can safely be fetched twice.
type Client struct {
	httpClient *resty.Client
}

// pageResponse is the provider's page envelope.
type pageResponse struct {
	Messages   []models.ExternalMessage `json:"messages"`
	NextCursor string                   `json:"next_cursor"`
}

// NewClient configures the resty client with the provider base URL, API key
// and the transient-failure retry policy.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("provider baseURL cannot be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key cannot be empty")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(20 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	log.Info().Str("baseURL", baseURL).Msg("Provider feed client configured")
	return &Client{httpClient: httpClient}, nil
}

// FetchPage implements sync.MessageSource.
func (c *Client) FetchPage(ctx context.Context, accountID string, req sync.PageRequest) (*sync.Page, error) {
	if accountID == "" {
		return nil, fmt.Errorf("fetch page: account id is empty")
	}

	r := c.httpClient.R().
		SetContext(ctx).
		SetResult(&pageResponse{}).
		SetQueryParam("page_size", fmt.Sprintf("%d", req.PageSize))
	if req.Cursor != "" {
		r.SetQueryParam("cursor", req.Cursor)
	}
	if !req.StartTime.IsZero() {
		r.SetQueryParam("start_time", req.StartTime.UTC().Format(time.RFC3339))
	}
	if !req.EndTime.IsZero() {
		r.SetQueryParam("end_time", req.EndTime.UTC().Format(time.RFC3339))
	}

	resp, err := r.Get(fmt.Sprintf("/v1/accounts/%s/messages", accountID))
	if err != nil {
		return nil, fmt.Errorf("provider page fetch for %s: %w", accountID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("provider page fetch for %s: status %s, body: %s",
			accountID, resp.Status(), resp.String())
	}

	page := resp.Result().(*pageResponse)
	log.Debug().
		Str("accountID", accountID).
		Str("cursor", req.Cursor).
		Int("messages", len(page.Messages)).
		Bool("hasNext", page.NextCursor != "").
		Msg("Fetched provider page")
	return &sync.Page{Messages: page.Messages, NextCursor: page.NextCursor}, nil
}
