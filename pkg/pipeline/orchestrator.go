// Package pipeline wires the detection core into the webhook use case:
// append the inbound turn, classify, track risk, engage the honeypot when a
// scam is flagged, and extract intelligence from the accumulated dialogue.
//
// One orchestration pass runs per session id at a time; requests for
// distinct sessions proceed concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/saat-labs/trapline/pkg/detect"
	"github.com/saat-labs/trapline/pkg/honeypot"
	"github.com/saat-labs/trapline/pkg/intel"
	"github.com/saat-labs/trapline/pkg/risk"
	"github.com/saat-labs/trapline/pkg/session"
	"github.com/saat-labs/trapline/pkg/telemetry"
)

// PriorTurn is one message of caller-supplied conversation history, as the
// webhook platform reports it.
type PriorTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Request is the transport-agnostic inbound payload.
type Request struct {
	SessionID  string      `json:"session_id"`
	Message    string      `json:"message"`
	PriorTurns []PriorTurn `json:"prior_turns,omitempty"`
}

// Response is the combined detection-and-engagement result.
type Response struct {
	IsScam       bool            `json:"is_scam"`
	ScamType     detect.ScamType `json:"scam_type"`
	Confidence   float64         `json:"confidence"`
	AgentReply   *string         `json:"agent_reply"`
	Intelligence intel.Report    `json:"extracted_intelligence"`
	RiskTrend    risk.Trend      `json:"risk_trend"`
	Action       risk.Action     `json:"recommended_action"`
}

// Engine executes the orchestration sequence. All oracle failures are
// absorbed by the classifier and agent; for authenticated, well-formed
// input Handle fails only on session-store errors.
type Engine struct {
	store      session.Store
	locks      *session.KeyedMutex
	classifier *detect.Classifier
	agent      *honeypot.Agent
	tracker    *risk.Tracker
	annotator  *detect.PhraseIndex // optional, advisory only
}

// NewEngine assembles the pipeline. annotator may be nil.
func NewEngine(store session.Store, classifier *detect.Classifier, agent *honeypot.Agent, tracker *risk.Tracker, annotator *detect.PhraseIndex) *Engine {
	return &Engine{
		store:      store,
		locks:      session.NewKeyedMutex(),
		classifier: classifier,
		agent:      agent,
		tracker:    tracker,
		annotator:  annotator,
	}
}

// Handle runs one detection-and-engagement pass for an inbound message.
//
// Under the session's lock: (a) seed prior history on first contact,
// (b) append the inbound turn, (c) classify, (d) update risk history,
// (e) engage the honeypot if flagged, (f) extract intelligence, and
// (g) assemble the response. Steps are strictly sequential - each depends
// on the previous one's output or side effects.
func (e *Engine) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	reqID := uuid.NewString()

	e.locks.Lock(req.SessionID)
	defer e.locks.Unlock(req.SessionID)

	if len(req.PriorTurns) > 0 {
		seeded, err := e.store.SeedIfNew(req.SessionID, invertRoles(req.PriorTurns))
		if err != nil {
			return nil, fmt.Errorf("seed history: %w", err)
		}
		if seeded {
			log.Printf("[%s] session %s seeded with %d prior turns", reqID, req.SessionID, len(req.PriorTurns))
		}
	}

	window, err := e.store.AppendTurn(req.SessionID, session.UserTurn(req.Message))
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	result := e.classifier.ClassifySession(ctx, window)

	history, err := e.store.AppendConfidence(req.SessionID, result.Confidence)
	if err != nil {
		return nil, fmt.Errorf("append confidence: %w", err)
	}
	assessment := e.tracker.Assess(history)

	resp := &Response{
		IsScam:       result.IsScam,
		ScamType:     result.ScamType,
		Confidence:   result.Confidence,
		Intelligence: intel.EmptyReport(),
		RiskTrend:    assessment.Trend,
		Action:       assessment.Action,
	}

	if result.IsScam {
		reply := e.agent.NextReply(ctx, window, result.ScamType)
		window, err = e.store.AppendTurn(req.SessionID, session.AssistantTurn(reply))
		if err != nil {
			return nil, fmt.Errorf("append reply: %w", err)
		}
		resp.AgentReply = &reply
		resp.Intelligence = intel.Extract(joinContents(window))
	}

	e.annotate(ctx, reqID, req.Message)

	telemetry.GlobalClient.Track("pipeline.handled", map[string]interface{}{
		"is_scam":   resp.IsScam,
		"scam_type": string(resp.ScamType),
		"trend":     string(resp.RiskTrend),
	})

	log.Printf("[%s] session %s scam=%t type=%s conf=%.2f trend=%s action=%s intel=%d",
		reqID, req.SessionID, resp.IsScam, resp.ScamType, resp.Confidence,
		resp.RiskTrend, resp.Action, resp.Intelligence.Total())

	return resp, nil
}

// annotate logs the advisory semantic category hint when the phrase index
// is enabled. It never influences the response.
func (e *Engine) annotate(ctx context.Context, reqID, text string) {
	if e.annotator == nil || !e.annotator.IsReady() {
		return
	}
	hint, err := e.annotator.Annotate(ctx, text)
	if err != nil || hint == nil {
		return
	}
	if hint.IsStrong {
		log.Printf("[%s] semantic hint: %s (%.0f%%) matched %q",
			reqID, hint.Category, hint.Score*100, hint.Matched)
	}
}

// invertRoles maps platform-reported history into transcript turns. The
// platform reports from the honeypot's perspective: our own senders become
// assistant turns, everyone else is the counterparty.
func invertRoles(prior []PriorTurn) []session.Turn {
	turns := make([]session.Turn, 0, len(prior))
	for _, p := range prior {
		switch strings.ToLower(strings.TrimSpace(p.Sender)) {
		case "assistant", "agent", "bot", "honeypot", "self":
			turns = append(turns, session.AssistantTurn(p.Text))
		default:
			turns = append(turns, session.UserTurn(p.Text))
		}
	}
	return turns
}

func joinContents(turns []session.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
