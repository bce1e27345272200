package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/saat-labs/trapline/pkg/oracle"
	"github.com/saat-labs/trapline/pkg/session"
)

// fakeOracle scripts the classify response for tests.
type fakeOracle struct {
	decision *oracle.Decision
	err      error
	calls    int
}

func (f *fakeOracle) Classify(ctx context.Context, system string, conv []oracle.Message) (*oracle.Decision, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func turns(contents ...string) []session.Turn {
	out := make([]session.Turn, 0, len(contents))
	for _, c := range contents {
		out = append(out, session.UserTurn(c))
	}
	return out
}

func TestKeywordShortCircuitSkipsOracle(t *testing.T) {
	for _, content := range []string{
		"your account is SUSPENDED",
		"please verify your details",
		"share the OTP now",
		"the Bank needs confirmation",
		"pay immediately or else",
	} {
		f := &fakeOracle{err: fmt.Errorf("oracle must not be called")}
		c := NewClassifier(f)

		r := c.ClassifySession(context.Background(), turns(content))
		if !r.IsScam || r.ScamType != ScamPhishing {
			t.Fatalf("%q: expected phishing flag, got %+v", content, r)
		}
		if r.Reason != ReasonKeywordTrigger {
			t.Fatalf("%q: expected keyword_trigger reason, got %q", content, r.Reason)
		}
		if r.Confidence != DefaultKeywordConfidence {
			t.Fatalf("%q: expected confidence %.2f, got %.2f", content, DefaultKeywordConfidence, r.Confidence)
		}
		if f.calls != 0 {
			t.Fatalf("%q: oracle was called %d times on fast path", content, f.calls)
		}
	}
}

func TestKeywordMatchesAcrossTurns(t *testing.T) {
	f := &fakeOracle{err: fmt.Errorf("oracle must not be called")}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("hello there", "how are you", "send the fee today"))
	if !r.IsScam || r.Reason != ReasonKeywordTrigger {
		t.Fatalf("expected keyword trigger across turns, got %+v", r)
	}
}

func TestKeywordNormalization(t *testing.T) {
	// Fullwidth forms must not dodge the scan.
	f := &fakeOracle{err: fmt.Errorf("oracle must not be called")}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("share your ＯＴＰ"))
	if !r.IsScam || r.Reason != ReasonKeywordTrigger {
		t.Fatalf("expected normalized keyword hit, got %+v", r)
	}
}

func TestOracleDecisionPassthrough(t *testing.T) {
	f := &fakeOracle{decision: &oracle.Decision{
		IsScam:     true,
		ScamType:   "lottery",
		Confidence: 0.82,
		Reason:     "prize claim pressure",
	}}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("you have a surprise waiting, claim it today"))
	if !r.IsScam || r.ScamType != ScamLottery || r.Confidence != 0.82 {
		t.Fatalf("unexpected result: %+v", r)
	}
	if f.calls != 1 {
		t.Fatalf("expected exactly one oracle call, got %d", f.calls)
	}
}

func TestOracleCleanDecision(t *testing.T) {
	f := &fakeOracle{decision: &oracle.Decision{
		IsScam:     false,
		ScamType:   "none",
		Confidence: 0.05,
		Reason:     "ordinary conversation",
	}}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("are you coming to class tomorrow?"))
	if r.IsScam || r.ScamType != ScamNone {
		t.Fatalf("expected clean result, got %+v", r)
	}
}

func TestSafeFallbackOnTransportFailure(t *testing.T) {
	f := &fakeOracle{err: &oracle.TransportError{Op: "classify", Err: fmt.Errorf("timeout")}}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("hello friend, long time"))
	want := Result{IsScam: true, ScamType: ScamOther, Confidence: 0.7, Reason: ReasonSafeFallback}
	if r != want {
		t.Fatalf("expected exact safe fallback %+v, got %+v", want, r)
	}
}

func TestSafeFallbackOnParseFailure(t *testing.T) {
	f := &fakeOracle{err: &oracle.ParseError{Raw: "not json", Err: fmt.Errorf("invalid character")}}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("hello friend, long time"))
	if !r.IsScam || r.ScamType != ScamOther || r.Confidence != 0.7 || r.Reason != ReasonSafeFallback {
		t.Fatalf("expected safe fallback, got %+v", r)
	}
}

func TestUnknownScamTypeCoercedToOther(t *testing.T) {
	f := &fakeOracle{decision: &oracle.Decision{
		IsScam:     true,
		ScamType:   "romance",
		Confidence: 1.7, // out of range, must clamp
		Reason:     "x",
	}}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), turns("hello friend, long time"))
	if r.ScamType != ScamOther {
		t.Fatalf("expected coercion to other, got %s", r.ScamType)
	}
	if r.Confidence != 1.0 {
		t.Fatalf("expected clamped confidence 1.0, got %f", r.Confidence)
	}
}

func TestEmptyTranscriptGoesToOracle(t *testing.T) {
	f := &fakeOracle{decision: &oracle.Decision{IsScam: false, ScamType: "none", Confidence: 0, Reason: "no signal"}}
	c := NewClassifier(f)

	r := c.ClassifySession(context.Background(), nil)
	if r.IsScam {
		t.Fatalf("expected oracle-defined clean result, got %+v", r)
	}
	if f.calls != 1 {
		t.Fatalf("empty transcript should still reach the oracle, calls=%d", f.calls)
	}
}

func TestCustomKeywords(t *testing.T) {
	f := &fakeOracle{err: fmt.Errorf("oracle must not be called")}
	c := NewClassifier(f, WithKeywords([]string{"kyc"}), WithKeywordConfidence(0.85))

	r := c.ClassifySession(context.Background(), turns("complete your KYC today"))
	if !r.IsScam || r.Confidence != 0.85 {
		t.Fatalf("expected custom keyword hit at 0.85, got %+v", r)
	}

	// Default keywords are replaced, not merged.
	f2 := &fakeOracle{decision: &oracle.Decision{IsScam: false, ScamType: "none", Confidence: 0.1, Reason: "ok"}}
	c2 := NewClassifier(f2, WithKeywords([]string{"kyc"}))
	r2 := c2.ClassifySession(context.Background(), turns("my otp arrived"))
	if r2.Reason == ReasonKeywordTrigger {
		t.Fatalf("replaced keyword set should not match 'otp'")
	}
}
