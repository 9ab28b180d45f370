package domain

import "errors"

// Pipeline errors. Callers discriminate with errors.Is; adapters wrap these
// with context via fmt.Errorf("...: %w", err).
var (
	// ErrInvalidInput indicates malformed input. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPromptTooLong indicates the assembled prompt exceeds the model's
	// token ceiling. Raised before any network call; shorten the input.
	ErrPromptTooLong = errors.New("prompt exceeds model token ceiling")

	// ErrStoreUnavailable indicates the vector store backend is unreachable.
	// Retrieval may degrade to empty context with a logged warning;
	// destructive operations must hard-fail.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrEmbeddingUnavailable indicates the embedding backend failed.
	// Retrieval fails fast rather than returning ungrounded context.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrProviderTransient marks a retryable provider failure (429, 5xx,
	// network). Retried with backoff before falling through.
	ErrProviderTransient = errors.New("provider transient failure")

	// ErrProviderFatal marks a non-retryable provider rejection (4xx other
	// than 429). Falls through to the next provider immediately.
	ErrProviderFatal = errors.New("provider rejected request")

	// ErrAllProvidersExhausted indicates every provider in the fallback chain
	// failed. Terminal; triggers an audit alert.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrModerationUnavailable indicates the moderation backend could not be
	// reached. The screener reports an unknown verdict, never a silent pass.
	ErrModerationUnavailable = errors.New("moderation service unavailable")

	// ErrUnsupportedType indicates an unknown component type in configuration.
	ErrUnsupportedType = errors.New("unsupported type")
)
