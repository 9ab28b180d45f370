// Package assembler builds the final prompt from retrieved chunks and
// conversation history, trimming deterministically to a token ceiling.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"ragpipe/internal/domain"
)

// DefaultPreamble instructs the model to answer strictly from the supplied
// context blocks.
const DefaultPreamble = "You are a helpful assistant. Answer using only the numbered context " +
	"blocks below. If the context does not contain the answer, say you do not know."

// Assembler composes system preamble, conversation history, context blocks
// and the user query into a message list bounded by maxTokens.
type Assembler struct {
	counter    domain.TokenCounter
	maxTokens  int
	maxHistory int
	preamble   string
}

// New creates an assembler. A non-positive maxTokens defaults to 4096 and a
// non-positive maxHistory to 6 turns.
func New(counter domain.TokenCounter, maxTokens, maxHistory int, preamble string) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if maxHistory <= 0 {
		maxHistory = 6
	}
	if preamble == "" {
		preamble = DefaultPreamble
	}
	return &Assembler{
		counter:    counter,
		maxTokens:  maxTokens,
		maxHistory: maxHistory,
		preamble:   preamble,
	}
}

// Assemble builds the prompt. When the assembled prompt exceeds the token
// ceiling it drops the lowest-scoring chunk first, then the oldest history
// turn, recounting after each drop. Trimming stops once a single chunk and a
// single turn remain: those survive even if the prompt stays over ceiling, so
// an answer is never silently stripped of all grounding context. Only a bare
// query with nothing left to trim fails with ErrPromptTooLong.
func (a *Assembler) Assemble(query string, results []domain.RetrievalResult, history []domain.Message) (*domain.PromptAssembly, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	chunks := make([]domain.RetrievalResult, len(results))
	copy(chunks, results)
	if len(history) > a.maxHistory {
		history = history[len(history)-a.maxHistory:]
	}
	turns := make([]domain.Message, len(history))
	copy(turns, history)

	for {
		assembly := a.build(query, chunks, turns)
		if assembly.TokenCount <= a.maxTokens {
			return assembly, nil
		}
		if len(chunks) > 1 {
			chunks = dropWeakest(chunks)
			continue
		}
		if len(turns) > 1 {
			turns = turns[1:]
			continue
		}
		if len(chunks) > 0 || len(turns) > 0 {
			// the last remaining chunk and turn are never dropped
			return assembly, nil
		}
		return nil, fmt.Errorf("%w: prompt is %d tokens, ceiling %d",
			domain.ErrPromptTooLong, assembly.TokenCount, a.maxTokens)
	}
}

func (a *Assembler) build(query string, chunks []domain.RetrievalResult, turns []domain.Message) *domain.PromptAssembly {
	var messages []domain.Message
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: a.preamble})
	messages = append(messages, turns...)

	var b strings.Builder
	ids := make([]string, 0, len(chunks))
	for i, r := range chunks {
		fmt.Fprintf(&b, "Context %d (%s#%d): %s\n\n", i+1, r.Chunk.SourceID, r.Chunk.Index, r.Chunk.Text)
		ids = append(ids, fmt.Sprintf("%s#%d", r.Chunk.SourceID, r.Chunk.Index))
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: b.String()})

	var prompt strings.Builder
	for _, m := range messages {
		prompt.WriteString(m.Role)
		prompt.WriteString(": ")
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}
	text := prompt.String()
	return &domain.PromptAssembly{
		Messages:             messages,
		Prompt:               text,
		TokenCount:           a.counter.Count(text),
		IncludedChunkIDs:     ids,
		IncludedHistoryTurns: len(turns),
	}
}

// dropWeakest removes the lowest-scoring chunk. On equal scores the one
// appearing later in the list goes first, keeping drops deterministic.
func dropWeakest(chunks []domain.RetrievalResult) []domain.RetrievalResult {
	weakest := 0
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Score <= chunks[weakest].Score {
			weakest = i
		}
	}
	out := make([]domain.RetrievalResult, 0, len(chunks)-1)
	out = append(out, chunks[:weakest]...)
	out = append(out, chunks[weakest+1:]...)
	// ranks stay in retrieval order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
