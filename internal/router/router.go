// Package router dispatches chat completions across an ordered list of
// providers with sanitization, token pre-checks, bounded retries and
// audit logging.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ragpipe/internal/domain"
)

// Request is one routed completion.
type Request struct {
	// Providers optionally names the fallback chain for this request, in
	// order. Empty means the constructed order. Unknown names are rejected.
	Providers []string
	Model     string
	Messages  []domain.Message
	UserID    string
	TaskType  string
	Options   domain.GenerateOptions
}

// Result is a successful completion plus which provider produced it.
type Result struct {
	Completion *domain.Completion
	Provider   string
	Model      string
	LatencyMs  int64
}

// Config tunes routing behaviour.
type Config struct {
	// MaxAttempts bounds retries per provider, including the first try.
	MaxAttempts int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration
	// ModelCeilings maps model names to their input token ceilings. Requests
	// over the ceiling fail before any provider is called.
	ModelCeilings map[string]int
	// DefaultCeiling applies to models absent from ModelCeilings.
	DefaultCeiling int
	// RatePerSec throttles calls per provider; zero disables throttling.
	RatePerSec float64
}

// Router tries providers in registration order until one succeeds. A request
// may override the chain by naming registered providers.
type Router struct {
	providers []domain.Provider
	registry  map[string]domain.Provider
	limiters  map[string]*rate.Limiter
	counter   domain.TokenCounter
	audit     domain.AuditLog
	cfg       Config
	now       func() time.Time
}

// New creates a router over providers in fallback order.
func New(providers []domain.Provider, counter domain.TokenCounter, audit domain.AuditLog, cfg Config) *Router {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.DefaultCeiling <= 0 {
		cfg.DefaultCeiling = 8192
	}
	registry := make(map[string]domain.Provider, len(providers))
	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		registry[p.Name()] = p
		if cfg.RatePerSec > 0 {
			limiters[p.Name()] = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
		}
	}
	return &Router{
		providers: providers,
		registry:  registry,
		limiters:  limiters,
		counter:   counter,
		audit:     audit,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Route sanitizes the request, checks it against the model's token ceiling
// and walks the provider chain, either the request's ordered provider names
// or the constructed order. Each attempted provider leaves exactly one
// terminal audit record. When every provider fails the error wraps
// ErrAllProvidersExhausted and an alert is recorded.
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	chain, err := r.resolveChain(req.Providers)
	if err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", domain.ErrInvalidInput)
	}

	messages := make([]domain.Message, len(req.Messages))
	inputTokens := 0
	for i, m := range req.Messages {
		clean := m
		if m.Role == domain.RoleSystem {
			clean.Content = sanitizeSystem(m.Content)
		} else {
			clean.Content = sanitizeUser(m.Content)
		}
		messages[i] = clean
		inputTokens += r.counter.Count(clean.Content)
	}

	ceiling := r.cfg.DefaultCeiling
	if c, ok := r.cfg.ModelCeilings[req.Model]; ok {
		ceiling = c
	}
	if inputTokens > ceiling {
		return nil, fmt.Errorf("%w: %d tokens, model %s allows %d",
			domain.ErrPromptTooLong, inputTokens, req.Model, ceiling)
	}

	var lastErr error
	tried := make([]string, 0, len(chain))
	for _, p := range chain {
		tried = append(tried, p.Name())
		comp, latency, err := r.callWithRetry(ctx, p, req.Model, messages, req.Options)

		rec := domain.ProviderCallRecord{
			ID:        uuid.NewString(),
			Provider:  p.Name(),
			Model:     req.Model,
			LatencyMs: latency,
			UserID:    req.UserID,
			TaskType:  req.TaskType,
			Timestamp: r.now(),
		}
		if err != nil {
			rec.Outcome = domain.OutcomeFailure
			rec.Error = err.Error()
			if auditErr := r.audit.RecordCall(ctx, rec); auditErr != nil {
				log.Printf("router: audit write failed: %v", auditErr)
			}
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		outputTokens := r.counter.Count(comp.Content)
		rec.Outcome = domain.OutcomeSuccess
		rec.CostEstimate = estimateCostCents(req.Model, inputTokens, outputTokens)
		if auditErr := r.audit.RecordCall(ctx, rec); auditErr != nil {
			log.Printf("router: audit write failed: %v", auditErr)
		}
		if usageErr := r.audit.RecordUsage(ctx, domain.UsageRecord{
			UserID:       req.UserID,
			Provider:     p.Name(),
			Model:        req.Model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Timestamp:    r.now(),
		}); usageErr != nil {
			log.Printf("router: usage write failed: %v", usageErr)
		}
		return &Result{Completion: comp, Provider: p.Name(), Model: req.Model, LatencyMs: latency}, nil
	}

	if alertErr := r.audit.RecordAlert(ctx, domain.AlertRecord{
		Providers: tried,
		Model:     req.Model,
		UserID:    req.UserID,
		Reason:    fmt.Sprintf("all providers failed: %v", lastErr),
		Timestamp: r.now(),
	}); alertErr != nil {
		log.Printf("router: alert write failed: %v", alertErr)
	}
	return nil, fmt.Errorf("%w: tried %s: %v",
		domain.ErrAllProvidersExhausted, strings.Join(tried, ", "), lastErr)
}

// resolveChain maps requested provider names to registered implementations,
// falling back to the constructed order when none are named.
func (r *Router) resolveChain(names []string) ([]domain.Provider, error) {
	if len(names) == 0 {
		if len(r.providers) == 0 {
			return nil, fmt.Errorf("%w: no providers configured", domain.ErrInvalidInput)
		}
		return r.providers, nil
	}
	chain := make([]domain.Provider, 0, len(names))
	for _, name := range names {
		p, ok := r.registry[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, name)
		}
		chain = append(chain, p)
	}
	return chain, nil
}

// callWithRetry calls one provider with exponential backoff on transient
// errors. Fatal errors and context cancellation end the loop immediately.
func (r *Router) callWithRetry(ctx context.Context, p domain.Provider, model string, messages []domain.Message, opts domain.GenerateOptions) (*domain.Completion, int64, error) {
	start := r.now()
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, r.now().Sub(start).Milliseconds(), ctx.Err()
			case <-time.After(r.cfg.BaseDelay << (attempt - 1)):
			}
		}
		if lim := r.limiters[p.Name()]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, r.now().Sub(start).Milliseconds(), err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		comp, err := p.ChatComplete(callCtx, model, messages, opts)
		cancel()
		if err == nil {
			return comp, r.now().Sub(start).Milliseconds(), nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrProviderTransient) {
			break
		}
	}
	return nil, r.now().Sub(start).Milliseconds(), lastErr
}
