// Package chunker splits document text into overlapping, token-bounded chunks.
package chunker

import (
	"regexp"
	"strings"
	"time"

	"ragpipe/internal/domain"
)

// Strategy selects how text is split into indivisible units before the
// token-budget accumulation pass.
type Strategy string

const (
	// StrategySentence splits on sentence boundaries (default for plain text).
	StrategySentence Strategy = "sentence"
	// StrategyParagraph splits on blank lines (structured documents).
	StrategyParagraph Strategy = "paragraph"
	// StrategyLine splits on newlines (OCR output, tabular rows, transcripts).
	StrategyLine Strategy = "line"
)

// Splitter accumulates units greedily up to a token budget, emitting chunks
// with a sliding-window overlap so local context survives chunk boundaries.
type Splitter struct {
	counter       domain.TokenCounter
	maxTokens     int
	overlapTokens int
	minTokens     int
	strategy      Strategy
	sentenceRe    *regexp.Regexp
	now           func() time.Time
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithMinTokens discards trailing fragments estimated below min tokens.
// Zero disables the filter.
func WithMinTokens(min int) Option {
	return func(s *Splitter) {
		if min >= 0 {
			s.minTokens = min
		}
	}
}

// WithStrategy overrides the modality-derived unit splitting strategy.
func WithStrategy(st Strategy) Option {
	return func(s *Splitter) { s.strategy = st }
}

// NewSplitter creates a chunker with the given token budget and overlap.
func NewSplitter(counter domain.TokenCounter, maxTokens, overlapTokens int, opts ...Option) *Splitter {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 4
	}
	s := &Splitter{
		counter:       counter,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		sentenceRe:    regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chunk splits a document into token-bounded chunks. Empty input yields an
// empty list. A single unit that alone exceeds the budget is emitted as its
// own oversized chunk rather than dropped.
func (s *Splitter) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	units := s.splitUnits(doc.Content, s.strategyFor(doc.Modality))
	if len(units) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	var buf []string
	bufTokens := 0
	freshUnits := 0 // units in buf that are not overlap carry-over

	emit := func() {
		text := strings.TrimSpace(strings.Join(buf, " "))
		if text == "" {
			return
		}
		chunks = append(chunks, domain.Chunk{
			OwnerID:    doc.OwnerID,
			SourceID:   doc.SourceID,
			SourceName: doc.SourceName,
			Index:      len(chunks),
			Text:       text,
			TokenCount: s.counter.Count(text),
			Modality:   doc.Modality,
			CreatedAt:  s.now(),
		})
	}

	for _, unit := range units {
		ut := s.counter.Count(unit)
		if len(buf) > 0 && bufTokens+ut > s.maxTokens {
			emit()
			buf, bufTokens = s.overlapTail(buf)
			freshUnits = 0
			// a seed that cannot fit alongside the next unit would push the
			// chunk over budget, so it is dropped instead of carried
			if len(buf) > 0 && bufTokens+ut > s.maxTokens {
				buf, bufTokens = nil, 0
			}
		}
		buf = append(buf, unit)
		bufTokens += ut
		freshUnits++
	}

	// Trailing buffer: drop pure overlap carry-over, and drop fragments below
	// the minimum viable size unless they are the only content.
	if freshUnits > 0 {
		if len(chunks) == 0 || s.minTokens <= 0 || bufTokens >= s.minTokens {
			emit()
		}
	}
	return chunks, nil
}

// overlapTail returns the trailing units of the just-emitted buffer seeding
// the next chunk. The tail is capped near overlapTokens, taking at least one
// unit, so the seed never eats most of the next chunk's budget.
func (s *Splitter) overlapTail(buf []string) ([]string, int) {
	if s.overlapTokens <= 0 {
		return nil, 0
	}
	var tail []string
	tokens := 0
	for i := len(buf) - 1; i >= 0; i-- {
		ut := s.counter.Count(buf[i])
		if len(tail) > 0 && tokens+ut > s.overlapTokens {
			break
		}
		tail = append([]string{buf[i]}, tail...)
		tokens += ut
		if tokens >= s.overlapTokens {
			break
		}
	}
	return tail, tokens
}

func (s *Splitter) strategyFor(m domain.Modality) Strategy {
	if s.strategy != "" {
		return s.strategy
	}
	switch m {
	case domain.ModalityTable, domain.ModalityImage, domain.ModalityAudio, domain.ModalityVideo:
		return StrategyLine
	default:
		return StrategySentence
	}
}

var paragraphRe = regexp.MustCompile(`\n{2,}`)

// splitUnits breaks text into trimmed, non-empty units. Content after the
// last terminal punctuation is kept as a final unit so nothing is lost.
func (s *Splitter) splitUnits(text string, st Strategy) []string {
	var raw []string
	switch st {
	case StrategyParagraph:
		raw = paragraphRe.Split(text, -1)
	case StrategyLine:
		raw = strings.Split(text, "\n")
	default:
		raw = s.sentenceRe.FindAllString(text, -1)
		if rest := residue(text, raw); rest != "" {
			raw = append(raw, rest)
		}
		if len(raw) == 0 {
			raw = []string{text}
		}
	}
	units := make([]string, 0, len(raw))
	for _, u := range raw {
		if t := strings.TrimSpace(u); t != "" {
			units = append(units, t)
		}
	}
	return units
}

// residue returns text remaining after the matched sentences, e.g. a trailing
// clause with no terminal punctuation.
func residue(text string, sentences []string) string {
	consumed := 0
	for _, s := range sentences {
		idx := strings.Index(text[consumed:], s)
		if idx < 0 {
			return ""
		}
		consumed += idx + len(s)
	}
	return strings.TrimSpace(text[consumed:])
}
