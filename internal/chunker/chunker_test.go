package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
	"ragpipe/internal/tokenizer"
)

func doc(content string) domain.Document {
	return domain.Document{
		OwnerID:  "u1",
		SourceID: "src",
		Content:  content,
		Modality: domain.ModalityText,
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 10, 2)
	chunks, err := s.Chunk(doc(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.Chunk(doc("   \n  "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_SlidingWindowOverlap(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 2, 1)
	chunks, err := s.Chunk(doc("A. B. C. D."))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "A. B.", chunks[0].Text)
	assert.Equal(t, "B. C.", chunks[1].Text)
	assert.Equal(t, "C. D.", chunks[2].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "u1", c.OwnerID)
		assert.Equal(t, "src", c.SourceID)
		assert.Positive(t, c.TokenCount)
	}
}

func TestChunk_NoOverlap(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 2, 0)
	chunks, err := s.Chunk(doc("A. B. C. D."))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "A. B.", chunks[0].Text)
	assert.Equal(t, "C. D.", chunks[1].Text)
}

func TestChunk_FullCoverage(t *testing.T) {
	text := "The quick brown fox jumps. Over the lazy dog. Pack my box. With five dozen jugs. Liquor not included."
	s := NewSplitter(tokenizer.NewWordCounter(), 6, 2)
	chunks, err := s.Chunk(doc(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	joined := ""
	for _, c := range chunks {
		joined += " " + c.Text
	}
	for _, sentence := range []string{
		"The quick brown fox jumps.",
		"Over the lazy dog.",
		"Pack my box.",
		"With five dozen jugs.",
		"Liquor not included.",
	} {
		assert.Contains(t, joined, sentence)
	}
}

func TestChunk_OverlapSeedNeverExceedsBudget(t *testing.T) {
	// two-word sentences with a one-token overlap: carrying a whole sentence
	// as the seed would push every second chunk over the budget
	s := NewSplitter(tokenizer.NewWordCounter(), 3, 1)
	chunks, err := s.Chunk(doc("one two. three four. five six. seven eight."))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	joined := ""
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 3)
		joined += " " + c.Text
	}
	for _, sentence := range []string{"one two.", "three four.", "five six.", "seven eight."} {
		assert.Contains(t, joined, sentence)
	}
}

func TestChunk_OversizedUnitEmittedAlone(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 3, 1)
	long := strings.Repeat("word ", 10) + "end."
	chunks, err := s.Chunk(doc(long))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Greater(t, chunks[0].TokenCount, 3)
}

func TestChunk_MinTokensDropsTrailingFragment(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 2, 0, WithMinTokens(2))
	chunks, err := s.Chunk(doc("A. B. C."))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A. B.", chunks[0].Text)
}

func TestChunk_MinTokensKeepsOnlyContent(t *testing.T) {
	// a tiny document must not vanish entirely
	s := NewSplitter(tokenizer.NewWordCounter(), 10, 0, WithMinTokens(5))
	chunks, err := s.Chunk(doc("Hi."))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hi.", chunks[0].Text)
}

func TestChunk_UnterminatedTrailingText(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 10, 0)
	chunks, err := s.Chunk(doc("First sentence. and a trailing clause without punctuation"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "trailing clause")
}

func TestChunk_LineStrategyForTableModality(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 4, 0)
	d := doc("id,name,amount\n1,alpha,10\n2,beta,20\n3,gamma,30")
	d.Modality = domain.ModalityTable
	chunks, err := s.Chunk(d)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Text, "id,name,amount")
	for _, c := range chunks {
		assert.Equal(t, domain.ModalityTable, c.Modality)
	}
}

func TestChunk_ParagraphStrategy(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 3, 0, WithStrategy(StrategyParagraph))
	chunks, err := s.Chunk(doc("first block here\n\nsecond block here"))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first block here", chunks[0].Text)
	assert.Equal(t, "second block here", chunks[1].Text)
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	s := NewSplitter(tokenizer.NewWordCounter(), 8, 100)
	assert.Equal(t, 2, s.overlapTokens)
}
