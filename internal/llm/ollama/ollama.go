// Package ollama implements the chat provider port against a local Ollama
// server, typically the last link of the fallback chain.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragpipe/internal/domain"
)

// Provider calls Ollama's /api/chat endpoint.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New creates an Ollama provider. An empty baseURL defaults to the local
// daemon.
func New(baseURL string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Provider{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Name identifies this provider in routing and audit records.
func (p *Provider) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// ChatComplete sends one chat request with streaming disabled. A connection
// failure or 5xx is transient; an unknown model is fatal.
func (p *Provider) ChatComplete(ctx context.Context, model string, messages []domain.Message, opts domain.GenerateOptions) (*domain.Completion, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	reqBody := chatRequest{Model: model, Messages: msgs, Stream: false}
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		reqBody.Options = map[string]any{}
		if opts.Temperature > 0 {
			reqBody.Options["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			reqBody.Options["num_predict"] = opts.MaxTokens
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", domain.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: ollama: %s", domain.ErrProviderTransient, resp.Status)
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: ollama: %s: %s", domain.ErrProviderFatal, resp.Status, detail)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: ollama: decode: %v", domain.ErrProviderTransient, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: ollama: %s", domain.ErrProviderFatal, out.Error)
	}
	return &domain.Completion{Role: out.Message.Role, Content: out.Message.Content}, nil
}

var _ domain.Provider = (*Provider)(nil)
