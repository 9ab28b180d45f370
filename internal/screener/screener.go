// Package screener checks model answers before they reach the user: a
// safety pass via an optional moderation backend and a grounding pass that
// compares the answer against the retrieved context.
package screener

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"ragpipe/internal/domain"
)

// FailMode decides what happens when a screening backend cannot be reached.
type FailMode string

const (
	// FailOpen passes the answer through with Unknown set.
	FailOpen FailMode = "open"
	// FailClosed blocks the answer.
	FailClosed FailMode = "closed"
)

// DefaultGroundingThreshold is the minimum answer-to-context similarity
// below which an answer counts as ungrounded.
const DefaultGroundingThreshold = 0.75

// Screener runs safety and grounding checks over an answer.
type Screener struct {
	moderator domain.Moderator
	embedder  domain.Embedder
	threshold float64
	failMode  FailMode
}

// Config tunes the screener.
type Config struct {
	// Moderator is optional; nil means the safety check is unconfigured and
	// the verdict carries Unknown.
	Moderator domain.Moderator
	// Embedder measures answer-to-context similarity for the grounding check.
	Embedder domain.Embedder
	// GroundingThreshold overrides the default similarity cutoff.
	GroundingThreshold float64
	// FailMode applies when a backend is unreachable. Defaults to open.
	FailMode FailMode
}

// New creates a screener.
func New(cfg Config) *Screener {
	threshold := cfg.GroundingThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultGroundingThreshold
	}
	mode := cfg.FailMode
	if mode != FailClosed {
		mode = FailOpen
	}
	return &Screener{
		moderator: cfg.Moderator,
		embedder:  cfg.Embedder,
		threshold: threshold,
		failMode:  mode,
	}
}

// Screen judges an answer against the context it was generated from. A
// missing or failing backend never silently passes: the verdict's Unknown
// flag is set and the fail mode decides Safe.
func (s *Screener) Screen(ctx context.Context, answer string, contextUsed []domain.RetrievalResult) (domain.ScreeningVerdict, error) {
	verdict := domain.ScreeningVerdict{Safe: true, Confidence: 1}

	if s.moderator == nil {
		verdict.Unknown = true
		verdict.Issues = append(verdict.Issues, "moderation unconfigured")
	} else {
		safe, issues, err := s.moderator.Moderate(ctx, answer)
		switch {
		case err != nil:
			log.Printf("screener: moderation unavailable: %v", err)
			verdict.Unknown = true
			verdict.Issues = append(verdict.Issues, "moderation unavailable")
			if s.failMode == FailClosed {
				verdict.Safe = false
				return verdict, nil
			}
		case !safe:
			verdict.Safe = false
			verdict.Issues = append(verdict.Issues, issues...)
			return verdict, nil
		}
	}

	if len(contextUsed) == 0 {
		// nothing to ground against, leave the hallucination check undecided
		verdict.Unknown = true
		verdict.Issues = append(verdict.Issues, "no context to ground against")
		return verdict, nil
	}

	grounded, confidence, err := s.grounding(ctx, answer, contextUsed)
	if err != nil {
		log.Printf("screener: grounding check failed: %v", err)
		verdict.Unknown = true
		verdict.Issues = append(verdict.Issues, "grounding check unavailable")
		if s.failMode == FailClosed {
			verdict.Safe = false
		}
		return verdict, nil
	}
	verdict.Confidence = confidence
	if !grounded {
		verdict.Hallucination = true
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("answer similarity %.2f below threshold %.2f", confidence, s.threshold))
	}
	return verdict, nil
}

// grounding embeds the whole answer and compares it against every context
// chunk. The answer counts as grounded when its best similarity clears the
// threshold; confidence is that maximum score.
func (s *Screener) grounding(ctx context.Context, answer string, contextUsed []domain.RetrievalResult) (bool, float64, error) {
	if strings.TrimSpace(answer) == "" {
		return true, 1, nil
	}
	ansVec, err := s.embedder.Embed(ctx, answer)
	if err != nil {
		return false, 0, err
	}
	best := 0.0
	for _, r := range contextUsed {
		vec, err := s.embedder.Embed(ctx, r.Chunk.Text)
		if err != nil {
			return false, 0, err
		}
		if sim := cosine(ansVec, vec); sim > best {
			best = sim
		}
	}
	return best >= s.threshold, best, nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dot, na, nb := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
