package scanner

import (
	"context"

	"github.com/cortexshield/llmguard/internal/security"
)

// RedactionScanner wraps security.Redactor as a Scanner: it rewrites secret
// patterns and tracked literal credentials in the scanned text and always
// passes (redaction sanitizes rather than rejects). Registering it before
// classifier scanners in a pipeline ensures those classifiers see redacted
// text, per spec §4.3's sequential-sanitization rationale.
type RedactionScanner struct {
	redactor *security.Redactor
}

// NewRedactionScanner wraps an existing Redactor. A nil redactor is
// rejected by the constructor rather than by a runtime panic.
func NewRedactionScanner(redactor *security.Redactor) *RedactionScanner {
	return &RedactionScanner{redactor: redactor}
}

// Name implements Scanner.
func (s *RedactionScanner) Name() string { return "redaction" }

// Scan implements Scanner. It never fails a request — its only job is to
// rewrite the text before it reaches downstream classifiers or the client.
func (s *RedactionScanner) Scan(_ context.Context, _, text string) (string, bool, float64, error) {
	return s.redactor.Redact(text), true, 0, nil
}
