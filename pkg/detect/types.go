package detect

// ScamType labels the category of a detected scam.
type ScamType string

const (
	ScamPayment       ScamType = "payment"
	ScamPhishing      ScamType = "phishing"
	ScamLottery       ScamType = "lottery"
	ScamImpersonation ScamType = "impersonation"
	ScamOther         ScamType = "other"
	ScamNone          ScamType = "none"
)

// ParseScamType maps a free-form label to the closed ScamType set. Unknown
// labels coerce to ScamOther so a sloppy oracle cannot widen the enum.
func ParseScamType(s string) ScamType {
	switch ScamType(s) {
	case ScamPayment, ScamPhishing, ScamLottery, ScamImpersonation, ScamOther, ScamNone:
		return ScamType(s)
	default:
		return ScamOther
	}
}

// Result is a single classification outcome. Produced fresh per call; only
// its Confidence is retained (in the session's risk history).
type Result struct {
	IsScam     bool     `json:"is_scam"`
	ScamType   ScamType `json:"scam_type"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Well-known Reason values for the non-oracle decision paths.
const (
	ReasonKeywordTrigger = "keyword_trigger"
	ReasonSafeFallback   = "safe_fallback"
)
