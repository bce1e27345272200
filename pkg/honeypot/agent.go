// Package honeypot generates the simulated-human side of a flagged
// conversation. The agent's job is to keep a scammer engaged and asking,
// so replies always sound like a slightly confused person texting - never
// like detection software.
//
// NextReply is total: whatever the oracle does, the caller gets a
// non-empty, lowercase, plausible reply of at least MinReplyLen characters.
package honeypot

import (
	"context"
	"log"
	"strings"

	"github.com/saat-labs/trapline/pkg/detect"
	"github.com/saat-labs/trapline/pkg/oracle"
	"github.com/saat-labs/trapline/pkg/session"
)

// GenerateOracle is the slice of the oracle adapter the agent needs.
type GenerateOracle interface {
	Generate(ctx context.Context, system string, conv []oracle.Message, seed string) (string, error)
}

// MinReplyLen is the shortest reply the agent will emit. Anything shorter
// from the oracle is discarded in favor of the seed hint.
const MinReplyLen = 6

// personaSystemPrompt frames the honeypot persona for the oracle.
const personaSystemPrompt = `you are a normal person replying casually to a message.

you do NOT know this is a scam.
you think it might be real.

how you write:
- all lowercase
- natural short sentences
- mildly confused or curious
- sounds like a real human texting

rules:
- never mention scams, fraud, police, safety
- never accuse
- never analyze
- ask only ONE question
- reply must be a full sentence
- no emojis
- no symbols like ? alone

reply with ONLY the message text.`

// Agent produces honeypot replies.
type Agent struct {
	oracle    GenerateOracle
	followups map[detect.ScamType][]string
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithFollowups replaces the per-category seed question table. Categories
// missing from the override keep the built-in lists.
func WithFollowups(table map[detect.ScamType][]string) AgentOption {
	return func(a *Agent) {
		for k, v := range table {
			if len(v) > 0 {
				a.followups[k] = v
			}
		}
	}
}

// NewAgent creates a honeypot agent backed by the given oracle.
func NewAgent(o GenerateOracle, opts ...AgentOption) *Agent {
	a := &Agent{
		oracle:    o,
		followups: make(map[detect.ScamType][]string, len(defaultFollowups)),
	}
	for k, v := range defaultFollowups {
		a.followups[k] = v
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NextReply produces the next conversational turn for a flagged session.
//
//  1. Pick the category's seed question list (default arm for unmapped
//     categories); the first entry is the seed hint.
//  2. Ask the oracle for a paraphrase anchored on the seed.
//  3. Lowercase and trim; on failure, emptiness or a too-short result the
//     seed hint itself is the reply.
//
// The oracle is always attempted but its output is discardable: it buys
// naturalness, never correctness.
func (a *Agent) NextReply(ctx context.Context, turns []session.Turn, scamType detect.ScamType) string {
	seed := followupsFor(a.followups, scamType)[0]

	reply, err := a.oracle.Generate(ctx, personaSystemPrompt, toMessages(turns), seed)
	if err != nil {
		log.Printf("[FALLBACK] honeypot generation failed, using seed: %v", err)
		return seed
	}

	reply = strings.ToLower(strings.TrimSpace(reply))
	if len(reply) < MinReplyLen {
		return seed
	}
	return reply
}

func toMessages(turns []session.Turn) []oracle.Message {
	msgs := make([]oracle.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, oracle.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}
