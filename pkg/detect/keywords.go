package detect

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultKeywords is the fast-path trigger set. Any of these anywhere in a
// transcript short-circuits classification without an oracle call. The list
// is tuned for Indian payment/phishing scams; override via the detection
// config file.
var DefaultKeywords = []string{
	"urgent", "blocked", "verify", "otp",
	"upi", "account", "suspended",
	"immediately", "pay", "fee", "bank",
}

// normalizeForScan folds the text into a canonical lowercase form before the
// keyword scan. NFKC collapses fullwidth and compatibility forms scammers
// use to dodge naive substring checks (e.g. "ｏｔｐ", "ﬀee").
func normalizeForScan(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

// containsKeyword reports whether any keyword occurs in the normalized text.
func containsKeyword(normalized string, keywords []string) (string, bool) {
	for _, k := range keywords {
		if strings.Contains(normalized, k) {
			return k, true
		}
	}
	return "", false
}
