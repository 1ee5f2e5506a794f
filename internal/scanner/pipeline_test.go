package scanner

import (
	"context"
	"errors"
	"testing"
)

type stubScanner struct {
	name     string
	passed   bool
	risk     float64
	rewrite  func(string) string
	err      error
	calls    int
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(_ context.Context, _, text string) (string, bool, float64, error) {
	s.calls++
	if s.err != nil {
		return text, false, 0, s.err
	}
	out := text
	if s.rewrite != nil {
		out = s.rewrite(text)
	}
	return out, s.passed, s.risk, nil
}

func TestPipeline_AllPassingLeavesTextUnchanged(t *testing.T) {
	p := New(Config{Side: SideInput}, &stubScanner{name: "a", passed: true}, &stubScanner{name: "b", passed: true})

	result := p.Run(context.Background(), "hello", "hello")

	if !result.Allowed {
		t.Fatal("expected Allowed true")
	}
	if result.Sanitized != "hello" {
		t.Fatalf("Sanitized = %q, want %q", result.Sanitized, "hello")
	}
	if result.ScannerCount != 2 {
		t.Fatalf("ScannerCount = %d, want 2", result.ScannerCount)
	}
}

func TestPipeline_SanitizationAccumulatesAcrossScanners(t *testing.T) {
	redact := &stubScanner{name: "redact", passed: true, rewrite: func(s string) string { return "REDACTED" }}
	classify := &stubScanner{name: "classify", passed: true}
	p := New(Config{Side: SideInput}, redact, classify)

	result := p.Run(context.Background(), "secret", "secret")

	if result.Sanitized != "REDACTED" {
		t.Fatalf("Sanitized = %q, want %q", result.Sanitized, "REDACTED")
	}
	if !result.Scanners["redact"].Modified {
		t.Error("redact scanner outcome should be marked Modified")
	}
}

func TestPipeline_OneScannerFailingDoesNotSuppressOthers(t *testing.T) {
	bad := &stubScanner{name: "bad", passed: false, risk: 0.9}
	good := &stubScanner{name: "good", passed: true}
	p := New(Config{Side: SideInput}, bad, good)

	result := p.Run(context.Background(), "x", "x")

	if result.Allowed {
		t.Fatal("expected Allowed false")
	}
	if good.calls != 1 {
		t.Fatal("scanner after a failing scanner must still run")
	}
	if !result.Scanners["good"].Passed {
		t.Error("good scanner's own outcome should still be Passed")
	}
}

func TestPipeline_ScannerErrorIsIsolatedByDefault(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubScanner{name: "failing", err: boom}
	after := &stubScanner{name: "after", passed: true}
	p := New(Config{Side: SideOutput, BlockOnScannerError: false}, failing, after)

	result := p.Run(context.Background(), "prompt", "text")

	if result.Allowed {
		t.Fatal("expected Allowed false after a scanner error")
	}
	if after.calls != 1 {
		t.Fatal("subsequent scanners must still run when block_on_scanner_error is false")
	}
	if result.Scanners["failing"].Error != boom.Error() {
		t.Fatalf("Scanners[failing].Error = %q, want %q", result.Scanners["failing"].Error, boom.Error())
	}
}

func TestPipeline_BlockOnScannerErrorAbortsRemainingScanners(t *testing.T) {
	failing := &stubScanner{name: "failing", err: errors.New("boom")}
	after := &stubScanner{name: "after", passed: true}
	p := New(Config{Side: SideOutput, BlockOnScannerError: true}, failing, after)

	p.Run(context.Background(), "prompt", "text")

	if after.calls != 0 {
		t.Fatal("block_on_scanner_error=true must stop the remaining scanners from running")
	}
}

func TestPipeline_SetEnabledTogglesRuntimeParticipation(t *testing.T) {
	a := &stubScanner{name: "a", passed: true}
	p := New(Config{Side: SideInput}, a)

	if !p.SetEnabled("a", false) {
		t.Fatal("SetEnabled should find scanner a")
	}
	result := p.Run(context.Background(), "x", "x")
	if result.ScannerCount != 0 {
		t.Fatalf("ScannerCount = %d, want 0 when the only scanner is disabled", result.ScannerCount)
	}
	if p.SetEnabled("missing", true) {
		t.Fatal("SetEnabled should report false for an unregistered scanner")
	}
}

func TestResult_FailedScannersSortedByName(t *testing.T) {
	result := &Result{
		Allowed: false,
		Scanners: map[string]Outcome{
			"zeta":  {Passed: false, Risk: 0.5},
			"alpha": {Passed: false, Risk: 0.9},
			"beta":  {Passed: true},
		},
	}

	failed := result.FailedScanners()
	if len(failed) != 2 {
		t.Fatalf("len(FailedScanners) = %d, want 2", len(failed))
	}
	if failed[0].Scanner != "alpha" || failed[1].Scanner != "zeta" {
		t.Fatalf("FailedScanners order = %v, want [alpha zeta]", failed)
	}
}
