package domain

import (
	"context"
	"time"
)

// Chunker splits documents into token-bounded chunks suitable for embedding.
type Chunker interface {
	Chunk(doc Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// Dimension is fixed per model and must match across all records in a
// collection; it may be zero until the first successful Embed for remote
// implementations that discover it lazily.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Filter narrows vector store operations to matching records. OwnerID is
// mandatory: multi-tenant isolation is enforced inside the store adapters,
// never left to caller-side filtering.
type Filter struct {
	OwnerID        string
	SourceID       string
	Modality       Modality
	IncludeDeleted bool
}

// VectorStore persists embedding records and supports filtered
// nearest-neighbour search. Backend failures surface as ErrStoreUnavailable.
type VectorStore interface {
	// Init ensures the underlying collection exists with the given dimension.
	Init(ctx context.Context, dimension int) error
	// Upsert is idempotent: a record with an existing ID is replaced.
	Upsert(ctx context.Context, records []EmbeddingRecord) error
	// Search returns up to k matches ordered by descending similarity; ties
	// break by most recent CreatedAt, then ID.
	Search(ctx context.Context, vector []float64, k int, f Filter) ([]RetrievalResult, error)
	// Scroll lists matching records page by page. Pass the returned cursor to
	// continue; an empty cursor means the listing is complete.
	Scroll(ctx context.Context, f Filter, limit int, cursor string) ([]EmbeddingRecord, string, error)
	// DeleteByFilter tombstones matching records. Physical removal is left to
	// PurgeDeleted.
	DeleteByFilter(ctx context.Context, f Filter) error
	// PurgeDeleted physically removes records tombstoned before the cutoff
	// and reports how many were removed.
	PurgeDeleted(ctx context.Context, olderThan time.Time) (int, error)
}

// GenerateOptions configures a single chat completion.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// Completion is the uniform provider response shape.
type Completion struct {
	Role     string
	Content  string
	Streamed bool
}

// Provider is one chat-completion backend. Implementations classify their
// failures by wrapping ErrProviderTransient (retryable) or ErrProviderFatal
// (falls through to the next provider immediately).
type Provider interface {
	Name() string
	ChatComplete(ctx context.Context, model string, messages []Message, opts GenerateOptions) (*Completion, error)
}

// Moderator is an optional safety classification capability. A nil Moderator
// means moderation is unconfigured, which is a configuration state the
// screener reports rather than a silent pass.
type Moderator interface {
	Name() string
	Moderate(ctx context.Context, text string) (safe bool, issues []string, err error)
}

// TokenCounter estimates token counts. Implementations must be monotonic:
// more text never yields a lower estimate.
type TokenCounter interface {
	Name() string
	Count(text string) int
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// AuditLog records terminal provider outcomes, usage rows and exhaustion
// alerts. Entries are append-only.
type AuditLog interface {
	RecordCall(ctx context.Context, rec ProviderCallRecord) error
	RecordUsage(ctx context.Context, rec UsageRecord) error
	RecordAlert(ctx context.Context, rec AlertRecord) error
	RecentCalls(ctx context.Context, limit int) ([]ProviderCallRecord, error)
}
