// Package ingest posts scraped listings to the backend's ingest endpoint.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/listing"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
	apiKeyHeader   = "X-API-Key"
)

// StatusError reports a non-201 answer from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingest rejected with status %d: %s", e.StatusCode, e.Body)
}

// Config controls the Client.
type Config struct {
	URL       string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
}

// Client implements scraper.Submitter over HTTP.
type Client struct {
	url       string
	apiKey    string
	userAgent string
	http      *http.Client
	logger    *zap.Logger
}

// New builds a Client. A nil logger is replaced with a no-op one.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("ingest url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:       endpoint,
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

type createdResponse struct {
	ID int64 `json:"id"`
}

// Submit posts one payload and returns the id the backend assigned.
func (c *Client) Submit(ctx context.Context, payload listing.IngestRequest) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode ingest payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post listing: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("Failed to close ingest response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	var created createdResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("decode ingest response: %w", err)
	}
	return created.ID, nil
}
