package oracle

import "fmt"

// TransportError covers network failures, timeouts, non-200 statuses and
// empty completions from the inference provider. Callers treat it as "the
// oracle is unavailable" and take their fallback path.
type TransportError struct {
	Op  string // "classify" or "generate"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oracle %s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the provider answered but the response was not the strict
// JSON the classify contract requires.
type ParseError struct {
	Raw string // response text that failed to parse (truncated)
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oracle classify: parse failure: %v (raw: %.120s)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }
