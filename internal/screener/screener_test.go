package screener

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
	"ragpipe/internal/embedding"
)

type fakeModerator struct {
	safe   bool
	issues []string
	err    error
}

func (m *fakeModerator) Name() string { return "fake" }

func (m *fakeModerator) Moderate(context.Context, string) (bool, []string, error) {
	return m.safe, m.issues, m.err
}

func contextOf(texts ...string) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, len(texts))
	for i, t := range texts {
		out[i] = domain.RetrievalResult{Chunk: domain.Chunk{SourceID: "src", Index: i, Text: t}}
	}
	return out
}

func TestScreen_GroundedAnswerPasses(t *testing.T) {
	s := New(Config{
		Moderator: &fakeModerator{safe: true},
		Embedder:  embedding.NewHashEmbedder(0),
	})
	chunk := "the capital of France is Paris"
	verdict, err := s.Screen(context.Background(), "The capital of France is Paris.", contextOf(chunk))
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.False(t, verdict.Unknown)
	assert.False(t, verdict.Hallucination)
	assert.GreaterOrEqual(t, verdict.Confidence, DefaultGroundingThreshold)
}

func TestScreen_UngroundedAnswerFlagged(t *testing.T) {
	s := New(Config{
		Moderator: &fakeModerator{safe: true},
		Embedder:  embedding.NewHashEmbedder(0),
	})
	verdict, err := s.Screen(context.Background(),
		"Quarterly revenue exceeded twelve billion dollars.",
		contextOf("the capital of France is Paris"))
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.True(t, verdict.Hallucination)
	assert.Less(t, verdict.Confidence, DefaultGroundingThreshold)
	assert.NotEmpty(t, verdict.Issues)
}

func TestScreen_UnsafeAnswerBlocked(t *testing.T) {
	s := New(Config{
		Moderator: &fakeModerator{safe: false, issues: []string{"violence"}},
		Embedder:  embedding.NewHashEmbedder(0),
	})
	verdict, err := s.Screen(context.Background(), "bad answer", contextOf("bad answer"))
	require.NoError(t, err)
	assert.False(t, verdict.Safe)
	assert.Contains(t, verdict.Issues, "violence")
}

func TestScreen_ModerationUnconfigured(t *testing.T) {
	s := New(Config{Embedder: embedding.NewHashEmbedder(0)})
	chunk := "some grounded statement here"
	verdict, err := s.Screen(context.Background(), chunk, contextOf(chunk))
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.True(t, verdict.Unknown)
	assert.Contains(t, verdict.Issues, "moderation unconfigured")
}

func TestScreen_ModerationDownFailOpen(t *testing.T) {
	s := New(Config{
		Moderator: &fakeModerator{err: fmt.Errorf("%w: timeout", domain.ErrModerationUnavailable)},
		Embedder:  embedding.NewHashEmbedder(0),
		FailMode:  FailOpen,
	})
	chunk := "a grounded statement"
	verdict, err := s.Screen(context.Background(), chunk, contextOf(chunk))
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.True(t, verdict.Unknown)
}

func TestScreen_ModerationDownFailClosed(t *testing.T) {
	s := New(Config{
		Moderator: &fakeModerator{err: fmt.Errorf("%w: timeout", domain.ErrModerationUnavailable)},
		Embedder:  embedding.NewHashEmbedder(0),
		FailMode:  FailClosed,
	})
	verdict, err := s.Screen(context.Background(), "whatever", contextOf("whatever"))
	require.NoError(t, err)
	assert.False(t, verdict.Safe)
	assert.True(t, verdict.Unknown)
}

func TestScreen_NoContextLeavesGroundingUndecided(t *testing.T) {
	s := New(Config{
		Moderator: &fakeModerator{safe: true},
		Embedder:  embedding.NewHashEmbedder(0),
	})
	verdict, err := s.Screen(context.Background(), "an answer without sources", nil)
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
	assert.True(t, verdict.Unknown)
	assert.False(t, verdict.Hallucination)
}

func TestScreen_PartialOverlapUsesBestChunkSimilarity(t *testing.T) {
	// the answer restates one chunk and adds a weakly supported sentence;
	// the verdict reflects the best whole-answer similarity, not the worst part
	s := New(Config{
		Moderator:          &fakeModerator{safe: true},
		Embedder:           embedding.NewHashEmbedder(0),
		GroundingThreshold: 0.5,
	})
	verdict, err := s.Screen(context.Background(),
		"alpha beta gamma delta. zebra yak xylophone.",
		contextOf("alpha beta gamma delta", "totally unrelated material"))
	require.NoError(t, err)
	assert.False(t, verdict.Hallucination)
	assert.GreaterOrEqual(t, verdict.Confidence, 0.5)
}

func TestScreen_CustomThreshold(t *testing.T) {
	// a permissive threshold accepts loosely related answers
	s := New(Config{
		Moderator:          &fakeModerator{safe: true},
		Embedder:           embedding.NewHashEmbedder(0),
		GroundingThreshold: 0.1,
	})
	verdict, err := s.Screen(context.Background(),
		"Paris is a capital.",
		contextOf("the capital of France is Paris"))
	require.NoError(t, err)
	assert.False(t, verdict.Hallucination)
}
