// Package detect implements the scam classification decision: a keyword
// fast path, oracle-based classification for everything else, and a
// guaranteed-safe fallback when the oracle is unreachable or answers
// garbage. ClassifySession is total - it never returns an error.
package detect

import (
	"context"
	"log"
	"strings"

	"github.com/saat-labs/trapline/pkg/oracle"
	"github.com/saat-labs/trapline/pkg/session"
)

// ClassifyOracle is the slice of the oracle adapter the classifier needs.
type ClassifyOracle interface {
	Classify(ctx context.Context, system string, conv []oracle.Message) (*oracle.Decision, error)
}

// Default confidences for the two non-oracle decision paths.
const (
	DefaultKeywordConfidence  = 0.9
	DefaultFallbackConfidence = 0.7
)

// Classifier orchestrates the two-stage classification decision.
type Classifier struct {
	oracle             ClassifyOracle
	keywords           []string
	keywordConfidence  float64
	fallbackConfidence float64
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithKeywords replaces the fast-path keyword set.
func WithKeywords(keywords []string) ClassifierOption {
	return func(c *Classifier) {
		if len(keywords) > 0 {
			c.keywords = normalizeKeywords(keywords)
		}
	}
}

// WithKeywordConfidence sets the confidence reported on a keyword hit.
func WithKeywordConfidence(v float64) ClassifierOption {
	return func(c *Classifier) {
		if v > 0 && v <= 1 {
			c.keywordConfidence = v
		}
	}
}

// NewClassifier creates a classifier backed by the given oracle.
func NewClassifier(o ClassifyOracle, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		oracle:             o,
		keywords:           normalizeKeywords(DefaultKeywords),
		keywordConfidence:  DefaultKeywordConfidence,
		fallbackConfidence: DefaultFallbackConfidence,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassifySession classifies the transcript. Always returns a well-formed
// Result:
//
//  1. Keyword fast path: any configured keyword anywhere in the joined,
//     normalized transcript -> phishing at keyword confidence. Never calls
//     the oracle; O(transcript length).
//  2. Oracle classification with the strict-JSON instruction frame.
//  3. Any oracle failure -> conservative safe fallback. A missed scam costs
//     more than a false flag, so failure biases toward flagging.
func (c *Classifier) ClassifySession(ctx context.Context, turns []session.Turn) Result {
	var joined strings.Builder
	for i, t := range turns {
		if i > 0 {
			joined.WriteByte(' ')
		}
		joined.WriteString(t.Content)
	}

	if kw, hit := containsKeyword(normalizeForScan(joined.String()), c.keywords); hit {
		log.Printf("[FASTPATH] keyword %q triggered, oracle skipped", kw)
		return Result{
			IsScam:     true,
			ScamType:   ScamPhishing,
			Confidence: c.keywordConfidence,
			Reason:     ReasonKeywordTrigger,
		}
	}

	decision, err := c.oracle.Classify(ctx, classifySystemPrompt, toMessages(turns))
	if err != nil {
		log.Printf("[FALLBACK] oracle classification failed: %v", err)
		return Result{
			IsScam:     true,
			ScamType:   ScamOther,
			Confidence: c.fallbackConfidence,
			Reason:     ReasonSafeFallback,
		}
	}

	return Result{
		IsScam:     decision.IsScam,
		ScamType:   ParseScamType(decision.ScamType),
		Confidence: clamp01(decision.Confidence),
		Reason:     decision.Reason,
	}
}

func toMessages(turns []session.Turn) []oracle.Message {
	msgs := make([]oracle.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, oracle.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = normalizeForScan(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
