package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cortexshield/llmguard/internal/admission"
	"github.com/cortexshield/llmguard/internal/cache"
	"github.com/cortexshield/llmguard/internal/scanner"
	"github.com/cortexshield/llmguard/internal/security"
	"github.com/cortexshield/llmguard/internal/upstream"
)

// S1 — allowed non-streaming generate: a clean request round-trips to a
// 200 with the upstream body untouched, scanners all trivially passing.
func TestOrchestrator_AllowedNonStreamingGenerate(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("upstream path = %q, want /api/generate", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","response":"hi","done":true}`))
	}))
	defer up.Close()

	deps := newTestDeps(t, up.URL)
	deps.InputEnabled = true
	deps.OutputEnabled = true
	g := newTestGateway(t, "127.0.0.1:0", deps)

	body := `{"model":"m","prompt":"hello","stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	g.handleGenerate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["response"] != "hi" {
		t.Errorf("response = %v, want hi", resp["response"])
	}

	for _, s := range deps.Admission.Snapshot() {
		if s.InFlight != 0 {
			t.Errorf("model %s in_flight = %d, want 0 after completion", s.Model, s.InFlight)
		}
	}
	if deps.Cache.LocalLen() != 2 {
		t.Errorf("cache entries = %d, want 2 (input + output)", deps.Cache.LocalLen())
	}
}

// S2 — input blocked: a scanner flags the prompt and the orchestrator
// returns 451 in the OpenAI error shape without ever calling upstream.
func TestOrchestrator_InputBlocked(t *testing.T) {
	t.Parallel()

	calledUpstream := false
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calledUpstream = true
	}))
	defer up.Close()

	deps := newTestDeps(t, up.URL)
	deps.InputEnabled = true
	deps.InputPipeline = scanner.New(scanner.Config{Side: scanner.SideInput}, &blockingScanner{name: "denylist", block: "FORBIDDEN"})
	g := newTestGateway(t, "127.0.0.1:0", deps)

	body := `{"model":"m","messages":[{"role":"user","content":"FORBIDDEN"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rr := httptest.NewRecorder()
	g.handleOpenAIChatCompletions(rr, req)

	if rr.Code != http.StatusUnavailableForLegalReasons {
		t.Fatalf("status = %d, want 451, body=%s", rr.Code, rr.Body.String())
	}
	if calledUpstream {
		t.Error("upstream should not be called on an input block")
	}

	var body2 struct {
		Error struct {
			Code           string                  `json:"code"`
			FailedScanners []scanner.FailedScanner `json:"failed_scanners"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body2.Error.Code != "input_blocked" {
		t.Errorf("code = %q, want input_blocked", body2.Error.Code)
	}
	if len(body2.Error.FailedScanners) != 1 || body2.Error.FailedScanners[0].Scanner != "denylist" {
		t.Errorf("failed_scanners = %+v", body2.Error.FailedScanners)
	}
}

// S4 — queue full: with parallel_limit=1, queue_limit=0, a second
// concurrent request to the same model is rejected with 503 while the
// first is still in flight.
func TestOrchestrator_QueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","response":"ok","done":true}`))
	}))
	defer up.Close()

	c := cache.New(cache.Config{Backend: cache.BackendLocalOnly, LocalMaxEntries: 64, TTL: time.Minute})
	admitter := admission.New(func(string) admission.Limits {
		return admission.Limits{ParallelLimit: 1, QueueLimit: 0}
	})
	gate, err := security.NewIPGate(nil)
	if err != nil {
		t.Fatalf("NewIPGate: %v", err)
	}
	deps := Deps{
		Cache:          c,
		InputPipeline:  scanner.New(scanner.Config{Side: scanner.SideInput}),
		OutputPipeline: scanner.New(scanner.Config{Side: scanner.SideOutput}),
		Admission:      admitter,
		Upstream:       upstream.New(upstream.Config{BaseURL: up.URL}),
		IPGate:         gate,
		Audit:          security.NewAuditLogger(security.AuditLoggerConfig{}),
		Metrics:        NewMetrics(nil),
		CacheTTL:       time.Minute,
	}
	g := newTestGateway(t, "127.0.0.1:0", deps)

	var wg sync.WaitGroup
	var firstCode int
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(http.MethodPost, "/api/generate",
			strings.NewReader(`{"model":"m","prompt":"a","stream":false}`))
		rr := httptest.NewRecorder()
		g.handleGenerate(rr, req)
		firstCode = rr.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/api/generate",
		strings.NewReader(`{"model":"m","prompt":"b","stream":false}`))
	rr2 := httptest.NewRecorder()
	g.handleGenerate(rr2, req2)

	close(release)
	wg.Wait()

	if rr2.Code != http.StatusServiceUnavailable {
		t.Errorf("second request status = %d, want 503", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on queue_full")
	}
	if firstCode != http.StatusOK {
		t.Errorf("first request status = %d, want 200", firstCode)
	}

	for _, s := range admitter.Snapshot() {
		if s.TotalRejected != 1 {
			t.Errorf("total_rejected = %d, want 1", s.TotalRejected)
		}
	}
}

// S5 — OpenAI streaming round-trip: native NDJSON chunks "He"/"llo" map to
// the expected SSE delta frames followed by a stop frame and [DONE].
func TestOrchestrator_OpenAIStreamingRoundTrip(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []string{
			`{"model":"m","message":{"role":"assistant","content":"He"},"done":false}`,
			`{"model":"m","message":{"role":"assistant","content":"llo"},"done":false}`,
			`{"model":"m","message":{"role":"assistant","content":""},"done":true}`,
		}
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}))
	defer up.Close()

	deps := newTestDeps(t, up.URL)
	g := newTestGateway(t, "127.0.0.1:0", deps)

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rr := httptest.NewRecorder()
	g.handleOpenAIChatCompletions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}

	var deltas []string
	var sawStop, sawDone bool
	scan := bufio.NewScanner(bytes.NewReader(rr.Body.Bytes()))
	for scan.Scan() {
		line := scan.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		var chunk struct {
			Choices []struct {
				Delta        struct{ Content string } `json:"delta"`
				FinishReason *string                   `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", payload, err)
		}
		if len(chunk.Choices) != 1 {
			t.Fatalf("choices = %d, want 1", len(chunk.Choices))
		}
		if chunk.Choices[0].FinishReason != nil {
			sawStop = true
			continue
		}
		deltas = append(deltas, chunk.Choices[0].Delta.Content)
	}

	if got := strings.Join(deltas, ""); got != "Hello" {
		t.Errorf("concatenated deltas = %q, want %q", got, "Hello")
	}
	if !sawStop {
		t.Error("expected a finish_reason:stop frame")
	}
	if !sawDone {
		t.Error("expected a [DONE] frame")
	}
}
