// Package tokenizer provides token count estimation without a model-specific
// tokenizer dependency. Two implementations exist so tests can pin exact
// behaviour independent of what production wires in: WordCounter (pure
// whitespace word count) and HeuristicCounter (a word/character blend that
// tracks GPT-style tokenizers more closely). Both are monotonic: appending
// text never lowers the estimate.
package tokenizer

import (
	"fmt"
	"strings"

	"ragpipe/internal/domain"
)

// WordCounter estimates tokens as whitespace-separated words.
type WordCounter struct{}

// NewWordCounter returns the whitespace word-count estimator.
func NewWordCounter() *WordCounter { return &WordCounter{} }

func (*WordCounter) Name() string { return "words" }

func (*WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// HeuristicCounter blends word and character counts, approximating ~4 chars
// per token for GPT-style tokenizers.
type HeuristicCounter struct{}

// NewHeuristicCounter returns the blended word/character estimator.
func NewHeuristicCounter() *HeuristicCounter { return &HeuristicCounter{} }

func (*HeuristicCounter) Name() string { return "heuristic" }

func (*HeuristicCounter) Count(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)
	return (words + chars/4) / 2
}

// ForType returns the counter registered under the given config type name.
func ForType(name string) (domain.TokenCounter, error) {
	switch name {
	case "heuristic", "":
		return NewHeuristicCounter(), nil
	case "words":
		return NewWordCounter(), nil
	default:
		return nil, fmt.Errorf("%w: tokenizer %q", domain.ErrUnsupportedType, name)
	}
}
