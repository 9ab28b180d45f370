// Package moderation is an HTTP client for an external safety classifier.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragpipe/internal/domain"
)

// Client posts text to a moderation endpoint and reads back a verdict.
// Backend failures wrap ErrModerationUnavailable so the screener can apply
// its configured fail mode.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a moderation client for the given endpoint URL.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, client: &http.Client{Timeout: timeout}}
}

// Name identifies this moderator implementation.
func (c *Client) Name() string { return "http" }

// Moderate classifies text. The endpoint contract is
// POST {"text": ...} -> {"safe": bool, "issues": [...]}.
func (c *Client) Moderate(ctx context.Context, text string) (bool, []string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, nil, fmt.Errorf("%w: %v", domain.ErrModerationUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil, fmt.Errorf("%w: %s", domain.ErrModerationUnavailable, resp.Status)
	}

	var out struct {
		Safe   bool     `json:"safe"`
		Issues []string `json:"issues"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, nil, fmt.Errorf("%w: decode: %v", domain.ErrModerationUnavailable, err)
	}
	return out.Safe, out.Issues, nil
}

var _ domain.Moderator = (*Client)(nil)
