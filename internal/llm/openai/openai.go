// Package openai implements the chat provider port against the OpenAI
// chat completions API and compatible servers.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"ragpipe/internal/domain"
)

// Provider calls an OpenAI-compatible /chat/completions endpoint.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Config configures the provider.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
}

// New creates an OpenAI provider. The API key is read from the configured
// environment variable.
func New(cfg Config) (*Provider, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if cfg.APIKeyEnv != "" && key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Provider{
		baseURL: cfg.BaseURL,
		apiKey:  key,
		client:  &http.Client{Timeout: t},
	}, nil
}

// Name identifies this provider in routing and audit records.
func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatComplete sends one chat completion request. Rate limits, server errors
// and network failures classify as transient; everything else is fatal.
func (p *Provider) ChatComplete(ctx context.Context, model string, messages []domain.Message, opts domain.GenerateOptions) (*domain.Completion, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", domain.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: openai: %s", domain.ErrProviderTransient, resp.Status)
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: openai: %s: %s", domain.ErrProviderFatal, resp.Status, detail)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: openai: decode: %v", domain.ErrProviderTransient, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: openai: %s", domain.ErrProviderFatal, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai: empty response", domain.ErrProviderFatal)
	}
	return &domain.Completion{
		Role:    out.Choices[0].Message.Role,
		Content: out.Choices[0].Message.Content,
	}, nil
}

var _ domain.Provider = (*Provider)(nil)
