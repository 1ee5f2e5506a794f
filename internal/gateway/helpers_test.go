package gateway

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cortexshield/llmguard/internal/admission"
	"github.com/cortexshield/llmguard/internal/cache"
	"github.com/cortexshield/llmguard/internal/scanner"
	"github.com/cortexshield/llmguard/internal/security"
	"github.com/cortexshield/llmguard/internal/upstream"
)

// newTestDeps builds a minimal, functioning Deps against upstreamURL (a
// httptest.Server's URL). Both scan pipelines are empty and disabled by
// default — individual tests enable them and append scanners as needed.
func newTestDeps(t *testing.T, upstreamURL string) Deps {
	t.Helper()

	c := cache.New(cache.Config{Backend: cache.BackendLocalOnly, LocalMaxEntries: 64, TTL: time.Minute})
	inputPipeline := scanner.New(scanner.Config{Side: scanner.SideInput})
	outputPipeline := scanner.New(scanner.Config{Side: scanner.SideOutput})
	admitter := admission.New(func(string) admission.Limits {
		return admission.Limits{ParallelLimit: 4, QueueLimit: 4}
	})
	upstreamClient := upstream.New(upstream.Config{BaseURL: upstreamURL})
	gate, err := security.NewIPGate(nil)
	if err != nil {
		t.Fatalf("NewIPGate: %v", err)
	}
	audit := security.NewAuditLogger(security.AuditLoggerConfig{})

	return Deps{
		Cache:           c,
		InputPipeline:   inputPipeline,
		OutputPipeline:  outputPipeline,
		InputEnabled:    false,
		OutputEnabled:   false,
		Admission:       admitter,
		Upstream:        upstreamClient,
		IPGate:          gate,
		Audit:           audit,
		Metrics:         NewMetrics(nil),
		CacheTTL:        time.Minute,
		ScanWindowBytes: 500,
		UpstreamIdle:    0,
		Version:         "test",
		PublicConfig:    PublicConfig{Bind: "test"},
	}
}

// blockingScanner is a deterministic test scanner: it blocks whenever the
// scanned text contains block, and is otherwise a no-op passthrough.
type blockingScanner struct {
	name  string
	block string
}

func (s *blockingScanner) Name() string { return s.name }

func (s *blockingScanner) Scan(_ context.Context, _, text string) (string, bool, float64, error) {
	if s.block != "" && strings.Contains(text, s.block) {
		return text, false, 1.0, nil
	}
	return text, true, 0, nil
}

// newTestGateway builds a Gateway over deps, bound to addr, with short
// server timeouts.
func newTestGateway(t *testing.T, addr string, deps Deps) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(Config{
		Bind:            addr,
		ReadTimeout:     5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}, deps, logger)
}

// testWriter routes slog output through t.Log so it is associated with the
// failing (sub)test instead of leaking to stderr after the test finishes.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// freeAddr returns a free TCP address on localhost, so Gateway.Start can
// bind a fixed address a test can then dial.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}
