package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/assembler"
	"ragpipe/internal/audit"
	"ragpipe/internal/chunker"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
	"ragpipe/internal/retriever"
	"ragpipe/internal/router"
	"ragpipe/internal/screener"
	"ragpipe/internal/summarizer"
	"ragpipe/internal/tokenizer"
	"ragpipe/internal/vectorstore/memory"
)

// echoProvider answers with the text of the first context block so the
// screener sees a grounded answer.
type echoProvider struct {
	fail bool
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) ChatComplete(_ context.Context, _ string, messages []domain.Message, _ domain.GenerateOptions) (*domain.Completion, error) {
	if p.fail {
		return nil, fmt.Errorf("%w: echo down", domain.ErrProviderFatal)
	}
	return &domain.Completion{
		Role:    domain.RoleAssistant,
		Content: "Paris is the capital of France.",
	}, nil
}

func newTestPipeline(t *testing.T, provider domain.Provider, log domain.AuditLog) (*Pipeline, *memory.Store) {
	t.Helper()
	counter := tokenizer.NewWordCounter()
	emb := embedding.NewHashEmbedder(64)
	store := memory.NewStore()
	return New(Config{
		Chunker:   chunker.NewSplitter(counter, 20, 3),
		Embedder:  emb,
		Store:     store,
		Retriever: retriever.New(emb, store, 3),
		Assembler: assembler.New(counter, 500, 6, ""),
		Router: router.New([]domain.Provider{provider}, counter, log, router.Config{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			CallTimeout: time.Second,
		}),
		Screener: screener.New(screener.Config{
			Embedder:           emb,
			GroundingThreshold: 0.3,
		}),
		Summarizer: summarizer.NewFrequency(),
		Model:      "test-model",
	}), store
}

const franceDoc = "Paris is the capital of France. France is in western Europe. " +
	"The Seine flows through Paris. French cuisine is famous worldwide."

func ingestFrance(t *testing.T, p *Pipeline, owner string) *IngestSummary {
	t.Helper()
	sum, err := p.Ingest(context.Background(), domain.Document{
		OwnerID:    owner,
		SourceID:   "france.txt",
		SourceName: "france.txt",
		Content:    franceDoc,
		Modality:   domain.ModalityText,
	})
	require.NoError(t, err)
	return sum
}

func TestIngest_ChunksAndStores(t *testing.T) {
	p, store := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	sum := ingestFrance(t, p, "u1")

	assert.Equal(t, "france.txt", sum.SourceID)
	assert.Positive(t, sum.Chunks)
	assert.Positive(t, sum.Tokens)
	assert.NotEmpty(t, sum.Summary)

	recs, _, err := store.Scroll(context.Background(), domain.Filter{OwnerID: "u1"}, 100, "")
	require.NoError(t, err)
	assert.Len(t, recs, sum.Chunks)
}

func TestIngest_ReingestOverwrites(t *testing.T) {
	p, store := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	first := ingestFrance(t, p, "u1")
	second := ingestFrance(t, p, "u1")
	assert.Equal(t, first.Chunks, second.Chunks)

	recs, _, err := store.Scroll(context.Background(), domain.Filter{OwnerID: "u1"}, 100, "")
	require.NoError(t, err)
	assert.Len(t, recs, first.Chunks)
}

func TestIngest_ConcurrentSourcesAllStored(t *testing.T) {
	p, store := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	sums := make([]*IngestSummary, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sums[i], errs[i] = p.Ingest(ctx, domain.Document{
				OwnerID:  "u1",
				SourceID: fmt.Sprintf("doc-%d.txt", i),
				Content:  franceDoc,
				Modality: domain.ModalityText,
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, sums[i])
	}
	recs, _, err := store.Scroll(ctx, domain.Filter{OwnerID: "u1"}, 1000, "")
	require.NoError(t, err)
	assert.Len(t, recs, workers*sums[0].Chunks)
}

func TestIngest_Validation(t *testing.T) {
	p, _ := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	ctx := context.Background()

	_, err := p.Ingest(ctx, domain.Document{SourceID: "s", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.Ingest(ctx, domain.Document{OwnerID: "u1", SourceID: "s", Content: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieveAndAnswer_EndToEnd(t *testing.T) {
	log := audit.NewMemoryLog()
	p, _ := newTestPipeline(t, &echoProvider{}, log)
	ingestFrance(t, p, "u1")

	ans, err := p.RetrieveAndAnswer(context.Background(), "What is the capital of France?", "u1", AnswerOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", ans.Answer)
	assert.Equal(t, "echo", ans.Provider)
	assert.NotEmpty(t, ans.ContextUsed)
	assert.False(t, ans.Verdict.Hallucination)

	calls := log.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.OutcomeSuccess, calls[0].Outcome)
	assert.Equal(t, "u1", calls[0].UserID)
	assert.Equal(t, "rag_answer", calls[0].TaskType)
}

func TestRetrieveAndAnswer_OwnerIsolation(t *testing.T) {
	p, _ := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	ingestFrance(t, p, "u1")

	ans, err := p.RetrieveAndAnswer(context.Background(), "What is the capital of France?", "u2", AnswerOptions{})
	require.NoError(t, err)
	assert.Empty(t, ans.ContextUsed)
}

func TestRetrieveAndAnswer_ProviderExhaustion(t *testing.T) {
	log := audit.NewMemoryLog()
	p, _ := newTestPipeline(t, &echoProvider{fail: true}, log)
	ingestFrance(t, p, "u1")

	_, err := p.RetrieveAndAnswer(context.Background(), "What is the capital of France?", "u1", AnswerOptions{})
	assert.ErrorIs(t, err, domain.ErrAllProvidersExhausted)
	assert.Len(t, log.Alerts(), 1)
}

func TestRetrieveAndAnswer_Validation(t *testing.T) {
	p, _ := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	_, err := p.RetrieveAndAnswer(context.Background(), "", "u1", AnswerOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = p.RetrieveAndAnswer(context.Background(), "question", "", AnswerOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteSourceAndPurge(t *testing.T) {
	p, store := newTestPipeline(t, &echoProvider{}, audit.NewMemoryLog())
	sum := ingestFrance(t, p, "u1")
	ctx := context.Background()

	require.NoError(t, p.DeleteSource(ctx, "u1", "france.txt"))

	ans, err := p.RetrieveAndAnswer(ctx, "What is the capital of France?", "u1", AnswerOptions{})
	require.NoError(t, err)
	assert.Empty(t, ans.ContextUsed)

	purged, err := p.PurgeTombstones(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, sum.Chunks, purged)

	recs, _, err := store.Scroll(ctx, domain.Filter{OwnerID: "u1", IncludeDeleted: true}, 100, "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
