// Package service wires the pipeline together: ingestion on one side,
// retrieval-augmented answering on the other.
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ragpipe/internal/assembler"
	"ragpipe/internal/domain"
	"ragpipe/internal/retriever"
	"ragpipe/internal/router"
	"ragpipe/internal/screener"
)

// Pipeline is the public surface of the system.
type Pipeline struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	retriever  *retriever.Retriever
	assembler  *assembler.Assembler
	router     *router.Router
	screener   *screener.Screener
	summarizer domain.Summarizer
	model      string

	initMu   sync.Mutex
	initDone bool
}

// Config collects the pipeline's collaborators.
type Config struct {
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Retriever  *retriever.Retriever
	Assembler  *assembler.Assembler
	Router     *router.Router
	Screener   *screener.Screener
	Summarizer domain.Summarizer
	Model      string
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		retriever:  cfg.Retriever,
		assembler:  cfg.Assembler,
		router:     cfg.Router,
		screener:   cfg.Screener,
		summarizer: cfg.Summarizer,
		model:      cfg.Model,
	}
}

// IngestSummary describes one completed ingestion.
type IngestSummary struct {
	SourceID string
	Chunks   int
	Tokens   int
	Summary  string
}

// Ingest chunks, embeds and stores a document. Record IDs derive from the
// source and chunk position, so re-ingesting a source overwrites its old
// records in place.
func (p *Pipeline) Ingest(ctx context.Context, doc domain.Document) (*IngestSummary, error) {
	if doc.OwnerID == "" || doc.SourceID == "" {
		return nil, fmt.Errorf("%w: document requires owner and source", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}
	if doc.Modality == "" {
		doc.Modality = domain.ModalityText
	}

	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", doc.SourceID, err)
	}
	if len(chunks) == 0 {
		return &IngestSummary{SourceID: doc.SourceID}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", doc.SourceID, err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embed %s: got %d vectors for %d chunks", doc.SourceID, len(vecs), len(chunks))
	}

	if err := p.ensureStoreInit(ctx, len(vecs[0])); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	records := make([]domain.EmbeddingRecord, len(chunks))
	tokens := 0
	for i, c := range chunks {
		records[i] = domain.EmbeddingRecord{
			ID:         domain.RecordID(c.SourceID, c.Index, c.Modality),
			OwnerID:    c.OwnerID,
			SourceID:   c.SourceID,
			SourceName: c.SourceName,
			ChunkIndex: c.Index,
			Vector:     vecs[i],
			Text:       c.Text,
			Modality:   c.Modality,
			MimeType:   doc.MimeType,
			CreatedAt:  c.CreatedAt,
		}
		tokens += c.TokenCount
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("store %s: %w", doc.SourceID, err)
	}

	summary := ""
	if p.summarizer != nil {
		if summary, err = p.summarizer.Summarize(doc.Content, 3); err != nil {
			log.Printf("service: summarize %s: %v", doc.SourceID, err)
			summary = ""
		}
	}
	return &IngestSummary{
		SourceID: doc.SourceID,
		Chunks:   len(chunks),
		Tokens:   tokens,
		Summary:  summary,
	}, nil
}

// ensureStoreInit initializes the store collection exactly once across
// concurrent ingestions. A failed init is retried on the next call.
func (p *Pipeline) ensureStoreInit(ctx context.Context, dimension int) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.initDone {
		return nil
	}
	if err := p.store.Init(ctx, dimension); err != nil {
		return err
	}
	p.initDone = true
	return nil
}

// AnswerOptions tunes a single question.
type AnswerOptions struct {
	History []domain.Message
	Filter  domain.Filter
	// Providers optionally overrides the router's fallback chain.
	Providers []string
	TaskType  string
	Generate  domain.GenerateOptions
}

// RetrieveAndAnswer runs the full read path: retrieve the owner's best
// chunks, assemble a bounded prompt, route it across providers and screen
// the answer before returning it.
func (p *Pipeline) RetrieveAndAnswer(ctx context.Context, query, ownerID string, opts AnswerOptions) (*domain.Answer, error) {
	if strings.TrimSpace(query) == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: query and owner are required", domain.ErrInvalidInput)
	}

	results, err := p.retriever.Retrieve(ctx, query, ownerID, opts.Filter)
	if err != nil {
		return nil, err
	}

	prompt, err := p.assembler.Assemble(query, results, opts.History)
	if err != nil {
		return nil, err
	}

	taskType := opts.TaskType
	if taskType == "" {
		taskType = "rag_answer"
	}
	res, err := p.router.Route(ctx, router.Request{
		Providers: opts.Providers,
		Model:     p.model,
		Messages:  prompt.Messages,
		UserID:    ownerID,
		TaskType:  taskType,
		Options:   opts.Generate,
	})
	if err != nil {
		return nil, err
	}

	used := includedResults(results, prompt.IncludedChunkIDs)
	verdict, err := p.screener.Screen(ctx, res.Completion.Content, used)
	if err != nil {
		return nil, err
	}
	return &domain.Answer{
		Answer:      res.Completion.Content,
		Verdict:     verdict,
		ContextUsed: used,
		Provider:    res.Provider,
		Model:       res.Model,
		LatencyMs:   res.LatencyMs,
	}, nil
}

// DeleteSource tombstones every record of a source. Unlike retrieval, the
// delete path fails hard when the store is down.
func (p *Pipeline) DeleteSource(ctx context.Context, ownerID, sourceID string) error {
	if ownerID == "" || sourceID == "" {
		return fmt.Errorf("%w: owner and source are required", domain.ErrInvalidInput)
	}
	return p.store.DeleteByFilter(ctx, domain.Filter{OwnerID: ownerID, SourceID: sourceID})
}

// PurgeTombstones physically removes records deleted longer ago than the
// retention window.
func (p *Pipeline) PurgeTombstones(ctx context.Context, retention time.Duration) (int, error) {
	return p.store.PurgeDeleted(ctx, time.Now().Add(-retention))
}

// includedResults keeps only the retrieval results that survived prompt
// trimming, preserving retrieval order.
func includedResults(results []domain.RetrievalResult, ids []string) []domain.RetrievalResult {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := make([]domain.RetrievalResult, 0, len(ids))
	for _, r := range results {
		key := fmt.Sprintf("%s#%d", r.Chunk.SourceID, r.Chunk.Index)
		if _, ok := keep[key]; ok {
			out = append(out, r)
		}
	}
	return out
}
