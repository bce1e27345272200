// Package risk derives a per-session risk trend from the recent history of
// classification confidences. The history itself lives in the session store;
// this package is the pure decision table over it.
package risk

// Trend describes how the session's scam confidence is moving.
type Trend string

const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendHighRisk   Trend = "high_risk"
)

// Action is the recommended operator response for a trend.
type Action string

const (
	ActionMonitor Action = "monitor"
	ActionWarn    Action = "warn_user"
	ActionBlock   Action = "block_and_report"
)

// Default thresholds for the decision table. Tunable via config; the
// defaults reflect the shipped detection calibration.
const (
	DefaultBlockConfidence = 0.8
	DefaultHighRiskAvg     = 0.7
	DefaultIncreasingDelta = 0.15
)

// Assessment is the outcome of evaluating one new confidence sample.
type Assessment struct {
	Trend      Trend   `json:"risk_trend"`
	Action     Action  `json:"recommended_action"`
	Average    float64 `json:"average_confidence"`
	Confidence float64 `json:"latest_confidence"`
}

// Tracker evaluates confidence histories against configurable thresholds.
// The zero value is not usable; construct with NewTracker.
type Tracker struct {
	blockConfidence float64
	highRiskAvg     float64
	increasingDelta float64
}

// NewTracker creates a tracker. Non-positive thresholds fall back to the
// defaults.
func NewTracker(blockConfidence, highRiskAvg, increasingDelta float64) *Tracker {
	t := &Tracker{
		blockConfidence: blockConfidence,
		highRiskAvg:     highRiskAvg,
		increasingDelta: increasingDelta,
	}
	if t.blockConfidence <= 0 {
		t.blockConfidence = DefaultBlockConfidence
	}
	if t.highRiskAvg <= 0 {
		t.highRiskAvg = DefaultHighRiskAvg
	}
	if t.increasingDelta <= 0 {
		t.increasingDelta = DefaultIncreasingDelta
	}
	return t
}

// Assess evaluates a confidence history whose last element is the newest
// sample. The table is evaluated in order, first match wins:
//
//	new > blockConfidence && avg > highRiskAvg  -> high_risk / block_and_report
//	new > avg + increasingDelta                 -> increasing / warn_user
//	otherwise                                   -> stable / monitor
//
// Deterministic given the history; empty history yields stable/monitor.
func (t *Tracker) Assess(history []float64) Assessment {
	if len(history) == 0 {
		return Assessment{Trend: TrendStable, Action: ActionMonitor}
	}

	latest := history[len(history)-1]
	sum := 0.0
	for _, c := range history {
		sum += c
	}
	avg := sum / float64(len(history))

	a := Assessment{Average: avg, Confidence: latest}
	switch {
	case latest > t.blockConfidence && avg > t.highRiskAvg:
		a.Trend = TrendHighRisk
		a.Action = ActionBlock
	case latest > avg+t.increasingDelta:
		a.Trend = TrendIncreasing
		a.Action = ActionWarn
	default:
		a.Trend = TrendStable
		a.Action = ActionMonitor
	}
	return a
}
