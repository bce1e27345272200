package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/saat-labs/trapline/pkg/detect"
	"github.com/saat-labs/trapline/pkg/honeypot"
	"github.com/saat-labs/trapline/pkg/oracle"
	"github.com/saat-labs/trapline/pkg/risk"
	"github.com/saat-labs/trapline/pkg/session"
)

// stubOracle serves both the classifier and the honeypot agent with canned
// results.
type stubOracle struct {
	mu            sync.Mutex
	decision      *oracle.Decision
	classifyErr   error
	reply         string
	generateErr   error
	classifyCalls int
}

func (s *stubOracle) Classify(ctx context.Context, system string, conv []oracle.Message) (*oracle.Decision, error) {
	s.mu.Lock()
	s.classifyCalls++
	s.mu.Unlock()
	if s.classifyErr != nil {
		return nil, s.classifyErr
	}
	return s.decision, nil
}

func (s *stubOracle) Generate(ctx context.Context, system string, conv []oracle.Message, seed string) (string, error) {
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return s.reply, nil
}

func newTestEngine(t *testing.T, o *stubOracle) (*Engine, *session.MemoryStore) {
	t.Helper()

	store := session.NewMemoryStore()
	t.Cleanup(store.Close)

	classifier := detect.NewClassifier(o)
	agent := honeypot.NewAgent(o)
	tracker := risk.NewTracker(0.8, 0.7, 0.15)
	return NewEngine(store, classifier, agent, tracker, nil), store
}

func TestHandleScamPath(t *testing.T) {
	o := &stubOracle{
		decision: &oracle.Decision{IsScam: true, ScamType: "phishing", Confidence: 0.92, Reason: "credential lure"},
		reply:    "which account number should i check?",
	}
	eng, store := newTestEngine(t, o)

	resp, err := eng.Handle(context.Background(), Request{
		SessionID: "sess-1",
		Message:   "Your parcel is held, pay the fee at scammer@upi now",
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if !resp.IsScam || resp.ScamType != detect.ScamPhishing {
		t.Fatalf("unexpected verdict: %+v", resp)
	}
	if resp.AgentReply == nil || *resp.AgentReply == "" {
		t.Fatalf("scam verdict must include an agent reply")
	}
	if len(resp.Intelligence.UPIIDs) != 1 || resp.Intelligence.UPIIDs[0] != "scammer@upi" {
		t.Fatalf("expected UPI id extracted, got %+v", resp.Intelligence)
	}

	// The agent's reply joins the transcript for the next pass.
	window, _ := store.Window("sess-1")
	if len(window) != 2 || window[1].Role != session.RoleAssistant {
		t.Fatalf("agent turn missing from transcript: %+v", window)
	}
}

func TestHandleCleanPath(t *testing.T) {
	o := &stubOracle{
		decision: &oracle.Decision{IsScam: false, ScamType: "none", Confidence: 0.05, Reason: "benign chat"},
		reply:    "should never be used",
	}
	eng, store := newTestEngine(t, o)

	resp, err := eng.Handle(context.Background(), Request{
		SessionID: "sess-1",
		Message:   "lunch at noon? my number is 9876543210",
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if resp.IsScam {
		t.Fatalf("clean message flagged: %+v", resp)
	}
	if resp.AgentReply != nil {
		t.Fatalf("clean verdict must not engage the agent")
	}
	if resp.Intelligence.Total() != 0 {
		t.Fatalf("clean verdict must carry an empty report, got %+v", resp.Intelligence)
	}
	if resp.Intelligence.PhoneNumbers == nil {
		t.Fatalf("report slices must be non-nil for JSON encoding")
	}

	window, _ := store.Window("sess-1")
	if len(window) != 1 {
		t.Fatalf("expected only the user turn, got %+v", window)
	}
}

func TestHandleValidation(t *testing.T) {
	eng, _ := newTestEngine(t, &stubOracle{decision: &oracle.Decision{ScamType: "none"}})

	if _, err := eng.Handle(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatalf("expected error for missing session_id")
	}
	if _, err := eng.Handle(context.Background(), Request{SessionID: "s"}); err == nil {
		t.Fatalf("expected error for missing message")
	}
}

func TestHandleSeedsPriorTurnsOnce(t *testing.T) {
	o := &stubOracle{
		decision: &oracle.Decision{IsScam: false, ScamType: "none", Confidence: 0.1, Reason: "benign"},
	}
	eng, store := newTestEngine(t, o)

	prior := []PriorTurn{
		{Sender: "scammer", Text: "your account is at risk"},
		{Sender: "bot", Text: "oh no, what do i do"},
	}

	if _, err := eng.Handle(context.Background(), Request{SessionID: "sess-1", Message: "first", PriorTurns: prior}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	window, _ := store.Window("sess-1")
	if len(window) != 3 {
		t.Fatalf("expected seeded history plus inbound turn, got %d", len(window))
	}
	if window[0].Role != session.RoleUser || window[1].Role != session.RoleAssistant {
		t.Fatalf("history roles not inverted: %+v", window)
	}

	// Later requests carrying the same history must not re-seed.
	if _, err := eng.Handle(context.Background(), Request{SessionID: "sess-1", Message: "second", PriorTurns: prior}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	window, _ = store.Window("sess-1")
	if len(window) != 4 {
		t.Fatalf("prior turns re-seeded: %d turns", len(window))
	}
}

func TestHandleRiskEscalation(t *testing.T) {
	o := &stubOracle{
		decision: &oracle.Decision{IsScam: true, ScamType: "payment", Confidence: 0.95, Reason: "demand"},
		reply:    "how much is the processing fee?",
	}
	eng, _ := newTestEngine(t, o)

	resp, err := eng.Handle(context.Background(), Request{SessionID: "sess-1", Message: "send money now"})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if resp.RiskTrend != risk.TrendHighRisk || resp.Action != risk.ActionBlock {
		t.Fatalf("expected immediate high risk at 0.95, got trend=%s action=%s", resp.RiskTrend, resp.Action)
	}
}

func TestHandleOracleFailureDegrades(t *testing.T) {
	o := &stubOracle{
		classifyErr: fmt.Errorf("upstream down"),
		generateErr: fmt.Errorf("upstream down"),
	}
	eng, _ := newTestEngine(t, o)

	resp, err := eng.Handle(context.Background(), Request{SessionID: "sess-1", Message: "hello there friend"})
	if err != nil {
		t.Fatalf("oracle failures must not surface: %v", err)
	}

	// Classifier falls back to the cautious verdict; the agent falls back to
	// its seeded opener.
	if !resp.IsScam || resp.ScamType != detect.ScamOther || resp.Confidence != 0.7 {
		t.Fatalf("unexpected fallback verdict: %+v", resp)
	}
	if resp.AgentReply == nil || len(*resp.AgentReply) < honeypot.MinReplyLen {
		t.Fatalf("fallback reply missing or too short: %v", resp.AgentReply)
	}
}

func TestHandleConcurrentSameSession(t *testing.T) {
	o := &stubOracle{
		decision: &oracle.Decision{IsScam: false, ScamType: "none", Confidence: 0.1, Reason: "benign"},
	}
	eng, store := newTestEngine(t, o)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.Handle(context.Background(), Request{
				SessionID: "sess-1",
				Message:   fmt.Sprintf("message %d", i),
			})
			if err != nil {
				t.Errorf("handle failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	window, _ := store.Window("sess-1")
	if len(window) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(window))
	}
	if o.classifyCalls != 10 {
		t.Fatalf("expected 10 classifications, got %d", o.classifyCalls)
	}
}

func TestInvertRoles(t *testing.T) {
	turns := invertRoles([]PriorTurn{
		{Sender: "scammer", Text: "a"},
		{Sender: "Agent", Text: "b"},
		{Sender: " honeypot ", Text: "c"},
		{Sender: "", Text: "d"},
	})

	wantRoles := []session.Role{session.RoleUser, session.RoleAssistant, session.RoleAssistant, session.RoleUser}
	for i, r := range wantRoles {
		if turns[i].Role != r {
			t.Fatalf("turn %d role = %s, want %s", i, turns[i].Role, r)
		}
	}
}
