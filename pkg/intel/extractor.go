// Package intel extracts actionable scammer-identifying artifacts from
// conversation text: UPI-style payment ids, Indian mobile numbers, URLs and
// bank account numbers.
//
// All patterns are compiled once at package init and shared across calls.
// Extraction is pure: same input, same output, no state.
package intel

import (
	"regexp"
	"sort"
)

var (
	// local part >= 2 chars, alphabetic PSP suffix >= 2 chars (e.g. user@ybl)
	reUPI = regexp.MustCompile(`\b[a-zA-Z0-9.\-_]{2,}@[a-zA-Z]{2,}\b`)

	// optional +91 prefix, then a 10-digit subscriber number starting 6-9
	rePhone = regexp.MustCompile(`\b(?:\+91[\s-]?)?[6-9]\d{9}\b`)

	reURL = regexp.MustCompile(`https?://[^\s]+`)

	// candidate account numbers; phone matches take precedence at this length
	reAccount = regexp.MustCompile(`\b\d{9,18}\b`)
)

// Report holds the deduplicated artifacts found in one pass over a
// transcript. Slices are always non-nil so the JSON encoding stays an array.
type Report struct {
	UPIIDs       []string `json:"upi_ids"`
	PhoneNumbers []string `json:"phone_numbers"`
	BankAccounts []string `json:"bank_accounts"`
	URLs         []string `json:"urls"`
}

// EmptyReport returns a report with no findings (used for clean sessions).
func EmptyReport() Report {
	return Report{
		UPIIDs:       []string{},
		PhoneNumbers: []string{},
		BankAccounts: []string{},
		URLs:         []string{},
	}
}

// Total returns the number of artifacts across all categories.
func (r Report) Total() int {
	return len(r.UPIIDs) + len(r.PhoneNumbers) + len(r.BankAccounts) + len(r.URLs)
}

// Merge returns the deduplicated union of two reports.
func (r Report) Merge(other Report) Report {
	return Report{
		UPIIDs:       dedup(append(append([]string{}, r.UPIIDs...), other.UPIIDs...)),
		PhoneNumbers: dedup(append(append([]string{}, r.PhoneNumbers...), other.PhoneNumbers...)),
		BankAccounts: dedup(append(append([]string{}, r.BankAccounts...), other.BankAccounts...)),
		URLs:         dedup(append(append([]string{}, r.URLs...), other.URLs...)),
	}
}

// Extract scans text for payment and contact artifacts. Each artifact is
// reported at most once; output order is sorted for stable comparison.
//
// Disambiguation: a digit run that matches the phone pattern is reported as
// a phone number only, never as a bank account.
func Extract(text string) Report {
	r := EmptyReport()

	phones := make(map[string]bool)
	for _, m := range rePhone.FindAllString(text, -1) {
		phones[m] = true
	}
	r.PhoneNumbers = sortedKeys(phones)

	r.UPIIDs = dedup(reUPI.FindAllString(text, -1))
	r.URLs = dedup(reURL.FindAllString(text, -1))

	accounts := make(map[string]bool)
	for _, m := range reAccount.FindAllString(text, -1) {
		// phone precedence: a run that reads as a phone number is never an account
		if rePhone.MatchString(m) {
			continue
		}
		accounts[m] = true
	}
	r.BankAccounts = sortedKeys(accounts)

	return r
}

func dedup(matches []string) []string {
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		seen[m] = true
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
