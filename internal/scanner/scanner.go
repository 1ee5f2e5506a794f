// Package scanner implements the content-safety scanner pipeline: an
// ordered, error-isolated sequence of input or output scanners with
// sanitization passthrough.
package scanner

import (
	"context"
	"sort"
)

// Side identifies which pipeline a scanner belongs to.
type Side string

const (
	// SideInput scanners see only the prompt text.
	SideInput Side = "input"
	// SideOutput scanners see the prompt as context plus the generated text.
	SideOutput Side = "output"
)

// Scanner is an opaque content-safety check. Implementations may mutate the
// text (e.g. redact PII) and must be safe for concurrent use — a single
// instance is shared across every request. Scanner.Scan must not retry; a
// returned error marks the scanner as failed for that call, nothing else.
type Scanner interface {
	// Name uniquely identifies the scanner within its pipeline side.
	Name() string

	// Scan inspects text and returns the (possibly rewritten) text, whether
	// it passed, and a risk score in [0,1]. For input scanners, prompt and
	// text are identical; for output scanners, prompt is the original
	// request text given as context and text is the generated output.
	Scan(ctx context.Context, prompt, text string) (sanitized string, passed bool, risk float64, err error)
}

// Outcome is one scanner's verdict within a ScanResult.
type Outcome struct {
	Passed   bool    `json:"passed"`
	Risk     float64 `json:"risk"`
	Modified bool    `json:"modified"`
	Error    string  `json:"error,omitempty"`
}

// Result is the aggregate verdict of one pipeline run.
type Result struct {
	Allowed      bool               `json:"allowed"`
	Sanitized    string             `json:"sanitized"`
	Scanners     map[string]Outcome `json:"scanners"`
	ScannerCount int                `json:"scanner_count"`
}

// FailedScanner describes one scanner that did not pass, for inclusion in
// violation responses (spec: `failed_scanners` list).
type FailedScanner struct {
	Scanner string  `json:"scanner"`
	Reason  string  `json:"reason,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// FailedScanners returns every scanner in the result that did not pass,
// sorted by name for a deterministic response body.
func (r Result) FailedScanners() []FailedScanner {
	if r.Allowed {
		return nil
	}
	names := make([]string, 0, len(r.Scanners))
	for name := range r.Scanners {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []FailedScanner
	for _, name := range names {
		outcome := r.Scanners[name]
		if outcome.Passed {
			continue
		}
		fs := FailedScanner{Scanner: name, Score: outcome.Risk}
		if outcome.Error != "" {
			fs.Reason = outcome.Error
		}
		out = append(out, fs)
	}
	return out
}
