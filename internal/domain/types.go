package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Modality identifies the kind of source content a chunk was extracted from.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
	ModalityTable Modality = "table"
)

// Document is a unit of ingestion: extracted, cleaned text plus the metadata
// needed to address its chunks later. Extraction (PDF, OCR, transcription)
// happens upstream; Content is always text by the time it reaches the pipeline.
type Document struct {
	OwnerID    string
	SourceID   string
	SourceName string
	Content    string
	Modality   Modality
	MimeType   string
}

// Chunk is a bounded contiguous segment of a document, the unit of embedding
// and retrieval. Immutable once created; Index is monotonic per source.
type Chunk struct {
	OwnerID    string
	SourceID   string
	SourceName string
	Index      int
	Text       string
	TokenCount int
	Modality   Modality
	CreatedAt  time.Time
}

// EmbeddingRecord is a stored vector plus the payload the vector store keeps
// alongside it. Records are tombstoned on delete and purged by a later sweep.
type EmbeddingRecord struct {
	ID         string
	OwnerID    string
	SourceID   string
	SourceName string
	ChunkIndex int
	Vector     []float64
	Text       string
	Modality   Modality
	MimeType   string
	IsDeleted  bool
	CreatedAt  time.Time
	DeletedAt  time.Time
}

// RetrievalResult is a matching chunk with its similarity score and rank.
// Ephemeral, recomputed per query.
type RetrievalResult struct {
	Chunk Chunk
	Score float64
	Rank  int
}

// Message is a single conversation turn in the uniform provider shape.
type Message struct {
	Role    string
	Content string
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptAssembly is the result of fitting retrieved context, history and the
// user query under a token ceiling. Not persisted; its composition is
// deterministic given identical inputs and ceiling.
type PromptAssembly struct {
	Messages             []Message
	Prompt               string
	TokenCount           int
	IncludedChunkIDs     []string
	IncludedHistoryTurns int
}

// Outcome of a terminal provider attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ProviderCallRecord is an append-only audit entry for one terminal provider
// outcome. Never mutated after creation.
type ProviderCallRecord struct {
	ID           string
	Provider     string
	Model        string
	LatencyMs    int64
	CostEstimate float64
	UserID       string
	TaskType     string
	Outcome      Outcome
	Error        string
	Timestamp    time.Time
}

// UsageRecord is a coarse per-user token accounting row. Token counts are
// whitespace approximations, good enough for aggregation and quotas.
type UsageRecord struct {
	UserID       string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Timestamp    time.Time
}

// AlertRecord marks a full fallback-chain exhaustion, distinct from the
// per-provider attempt records.
type AlertRecord struct {
	Providers []string
	Model     string
	UserID    string
	Reason    string
	Timestamp time.Time
}

// ScreeningVerdict is the output screener's judgement of a model answer.
// Unknown is set when a check could not be performed, so callers can always
// tell a real verdict from a defaulted one.
type ScreeningVerdict struct {
	Safe          bool
	Unknown       bool
	Issues        []string
	Hallucination bool
	Confidence    float64
}

// Answer is the pipeline's public result for a single query.
type Answer struct {
	Answer      string
	Verdict     ScreeningVerdict
	ContextUsed []RetrievalResult
	Provider    string
	Model       string
	LatencyMs   int64
}

// recordNamespace seeds deterministic point IDs so re-ingesting a source
// overwrites its records instead of duplicating them.
var recordNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// RecordID derives the stable vector store ID for a chunk. The same
// (sourceID, chunkIndex, modality) always maps to the same UUID.
func RecordID(sourceID string, chunkIndex int, modality Modality) string {
	name := sourceID + ":" + strconv.Itoa(chunkIndex) + ":" + string(modality)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
