package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexshield/llmguard/internal/admission"
	"github.com/cortexshield/llmguard/internal/cache"
	"github.com/cortexshield/llmguard/internal/scanner"
	"github.com/cortexshield/llmguard/internal/security"
	"github.com/cortexshield/llmguard/internal/streamguard"
	"github.com/cortexshield/llmguard/internal/translate"
	"github.com/cortexshield/llmguard/internal/upstream"
)

// dialect distinguishes the two request/response wire shapes a handler
// composes its response in.
type dialect string

const (
	dialectNative  dialect = "native"
	dialectOpenAI  dialect = "openai"
)

// inputScan runs the input pipeline (if enabled) through the cache and
// returns the allowed verdict, or (false, failed) on a block.
func (g *Gateway) inputScan(ctx context.Context, text string) (allowed bool, failed []scanner.FailedScanner) {
	if !g.deps.InputEnabled || text == "" {
		return true, nil
	}
	fp := cache.Fingerprint(scanner.SideInput, text)
	verdict, err := g.deps.Cache.Compute(ctx, fp, g.deps.CacheTTL, func() (*scanner.Result, error) {
		return g.deps.InputPipeline.Run(ctx, text, text), nil
	})
	if err != nil {
		// Caller's own ctx is what canceled; treat as allowed and let the
		// surrounding request handling observe ctx.Err() itself.
		return true, nil
	}
	return verdict.Allowed, verdict.FailedScanners()
}

// writeBlocked emits a 451 in the request's dialect and logs the block.
func (g *Gateway) writeBlocked(w http.ResponseWriter, r *http.Request, kind errorKind, d dialect, failed []scanner.FailedScanner) {
	g.deps.Metrics.RecordBlocked(string(kind))
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventScanBlocked,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
		Detail:     string(kind),
	})
	if d == dialectOpenAI {
		writeOpenAIError(w, kind, "request blocked by content-safety policy", failed)
		return
	}
	writeNativeError(w, kind, "request blocked by content-safety policy", failed)
}

// writeUpstreamErr maps an upstream.Forward failure to the canonical
// status codes of spec §4.7/§7.
func (g *Gateway) writeUpstreamErr(w http.ResponseWriter, r *http.Request, d dialect, err error) {
	kind := kindUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = kindTimeout
	}
	g.deps.Metrics.RecordError(string(kind))
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventUpstreamError,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
		Detail:     err.Error(),
	})
	if d == dialectOpenAI {
		writeOpenAIError(w, kind, "upstream unreachable", nil)
		return
	}
	writeNativeError(w, kind, "upstream unreachable", nil)
}

// acquireAdmission blocks for a model ticket, writing the queue_full or
// client-gone response itself on rejection. Returns nil, false on
// rejection (caller must return without further writes on the
// canceled path, since the client is already gone).
func (g *Gateway) acquireAdmission(ctx context.Context, w http.ResponseWriter, r *http.Request, d dialect, model string) (*admission.Ticket, bool) {
	ticket, err := g.deps.Admission.Acquire(ctx, model)
	if err == nil {
		return ticket, true
	}
	if errors.Is(err, admission.ErrCanceled) {
		return nil, false
	}
	g.deps.Metrics.RecordRejected()
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventAdmissionReject,
		RemoteAddr: r.RemoteAddr,
		Model:      model,
		Detail:     "queue_full",
	})
	w.Header().Set("Retry-After", "5")
	if d == dialectOpenAI {
		writeOpenAIError(w, kindQueueFull, "model queue is full, retry later", nil)
		return nil, false
	}
	writeNativeError(w, kindQueueFull, "model queue is full, retry later", nil)
	return nil, false
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = security.DefaultMaxMessageSize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, security.ErrMessageTooLarge
	}
	return data, nil
}

// ---- native generation endpoints ----

func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req translate.NativeGenerateRequest
	body, err := readBody(r, g.maxBody())
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeNativeError(w, kindBadRequest, "malformed request body", nil)
		return
	}
	g.runNativeGeneration(w, r, req.Model, req.Prompt, req.Stream, body, "/api/generate",
		func(line []byte) (streamguard.Chunk, error) {
			resp, err := translate.DecodeNativeGenerateResponse(line)
			if err != nil {
				return streamguard.Chunk{}, err
			}
			return streamguard.Chunk{Raw: append(append([]byte(nil), line...), '\n'), Text: resp.Response, Done: resp.Done}, nil
		},
		func(raw []byte) string {
			resp, _ := translate.DecodeNativeGenerateResponse(raw)
			return resp.Response
		},
	)
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req translate.NativeChatRequest
	body, err := readBody(r, g.maxBody())
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeNativeError(w, kindBadRequest, "malformed request body", nil)
		return
	}
	text := chatText(req.Messages)
	g.runNativeGeneration(w, r, req.Model, text, req.Stream, body, "/api/chat",
		func(line []byte) (streamguard.Chunk, error) {
			resp, err := translate.DecodeNativeChatResponse(line)
			if err != nil {
				return streamguard.Chunk{}, err
			}
			return streamguard.Chunk{Raw: append(append([]byte(nil), line...), '\n'), Text: resp.Message.Content, Done: resp.Done}, nil
		},
		func(raw []byte) string {
			resp, _ := translate.DecodeNativeChatResponse(raw)
			return resp.Message.Content
		},
	)
}

func chatText(messages []translate.NativeMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// runNativeGeneration is the shared native chat/generate flow (spec §4.7):
// input scan → admission → forward → (stream guard | non-streaming scan).
func (g *Gateway) runNativeGeneration(w http.ResponseWriter, r *http.Request, model, inputText string, streaming bool, body []byte, path string, extract streamguard.ExtractFunc, textOf func([]byte) string) {
	g.deps.Metrics.RecordRequest(string(dialectNative), path)
	start := time.Now()
	ctx := r.Context()

	if allowed, failed := g.inputScan(ctx, inputText); !allowed {
		g.writeBlocked(w, r, kindInputBlocked, dialectNative, failed)
		return
	}

	ticket, ok := g.acquireAdmission(ctx, w, r, dialectNative, model)
	if !ok {
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			g.deps.Admission.Release(ticket)
		}
	}
	defer release()

	up, err := g.deps.Upstream.Forward(ctx, http.MethodPost, path, r.Header, bytes.NewReader(body), streaming)
	if err != nil {
		release()
		g.writeUpstreamErr(w, r, dialectNative, err)
		return
	}

	if up.StatusCode() >= 400 {
		release()
		w.WriteHeader(up.StatusCode())
		_, _ = io.Copy(w, up.Body())
		up.Cancel()
		return
	}

	if !streaming {
		defer release()
		g.respondNonStreamingNative(ctx, w, up, inputText, textOf, dialectNative, model)
		g.deps.Metrics.RecordCompletion(string(dialectNative), 0, time.Since(start))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	result := streamguard.Run(ctx, streamguard.Config{
		Prompt:          inputText,
		ScanWindowBytes: g.deps.ScanWindowBytes,
		Cache:           g.deps.Cache,
		Pipeline:        g.deps.OutputPipeline,
		Extract:         extract,
		TerminalFrame:   nativeTerminalFrame,
		CacheTTL:        g.deps.CacheTTL,
		IdleTimeout:     g.deps.UpstreamIdle,
	}, up, flushWriter{w, flusher})
	release()
	g.deps.Metrics.RecordCompletion(string(dialectNative), 0, time.Since(start))
	if result.Blocked {
		g.deps.Metrics.RecordBlocked(string(kindOutputBlocked))
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventScanBlocked, RemoteAddr: r.RemoteAddr, Path: r.URL.Path, Model: model})
	}
}

// flushWriter flushes after every write so streamed chunks reach the
// client immediately instead of sitting in the server's buffer.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// respondNonStreamingNative reads the full upstream body, runs the output
// scan, and writes the (possibly blocked) response.
func (g *Gateway) respondNonStreamingNative(ctx context.Context, w http.ResponseWriter, up *upstream.ResponseHandle, prompt string, textOf func([]byte) string, d dialect, model string) {
	raw, err := io.ReadAll(up.Body())
	up.Cancel()
	if err != nil {
		writeNativeError(w, kindUnavailable, "upstream read failed", nil)
		return
	}

	text := textOf(raw)
	if g.deps.OutputEnabled && text != "" {
		fp := cache.Fingerprint(scanner.SideOutput, text)
		verdict, err := g.deps.Cache.Compute(ctx, fp, g.deps.CacheTTL, func() (*scanner.Result, error) {
			return g.deps.OutputPipeline.Run(ctx, prompt, text), nil
		})
		if err == nil && !verdict.Allowed {
			g.deps.Metrics.RecordBlocked(string(kindOutputBlocked))
			if d == dialectOpenAI {
				writeOpenAIError(w, kindOutputBlocked, "response blocked by content-safety policy", verdict.FailedScanners())
				return
			}
			writeNativeError(w, kindOutputBlocked, "response blocked by content-safety policy", verdict.FailedScanners())
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// ---- native model-management passthrough ----

// handlePassthrough forwards model-management requests untouched: no
// scanning, no admission (spec §6/§4.4 scope).
func (g *Gateway) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	g.deps.Metrics.RecordRequest(string(dialectNative), r.URL.Path)
	var body io.Reader
	if r.Body != nil {
		data, err := readBody(r, g.maxBody())
		if err != nil {
			writeNativeError(w, kindBadRequest, "request body too large", nil)
			return
		}
		body = bytes.NewReader(data)
	}

	up, err := g.deps.Upstream.Forward(r.Context(), r.Method, r.URL.Path, r.Header, body, false)
	if err != nil {
		g.writeUpstreamErr(w, r, dialectNative, err)
		return
	}
	defer up.Cancel()

	for k, vv := range up.Header() {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(up.StatusCode())
	_, _ = io.Copy(w, up.Body())
}

// ---- native embed ----

func (g *Gateway) handleEmbed(w http.ResponseWriter, r *http.Request) {
	g.deps.Metrics.RecordRequest(string(dialectNative), "/api/embed")
	body, err := readBody(r, g.maxBody())
	var req translate.NativeEmbedRequest
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeNativeError(w, kindBadRequest, "malformed request body", nil)
		return
	}

	text := translate.EmbedInputText(req.Input)
	if allowed, failed := g.inputScan(r.Context(), text); !allowed {
		g.writeBlocked(w, r, kindInputBlocked, dialectNative, failed)
		return
	}

	// Embeddings bypass admission per spec §4.4.
	up, err := g.deps.Upstream.Forward(r.Context(), http.MethodPost, "/api/embed", r.Header, bytes.NewReader(body), false)
	if err != nil {
		g.writeUpstreamErr(w, r, dialectNative, err)
		return
	}
	defer up.Cancel()
	if up.StatusCode() >= 400 {
		w.WriteHeader(up.StatusCode())
		_, _ = io.Copy(w, up.Body())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.Copy(w, up.Body())
}

// ---- OpenAI-compatible endpoints ----

func (g *Gateway) handleOpenAIChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req translate.ChatCompletionRequest
	body, err := readBody(r, g.maxBody())
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeOpenAIError(w, kindBadRequest, "malformed request body", nil)
		return
	}
	native := translate.ChatRequestToNative(req)
	nativeBody, _ := json.Marshal(native)
	text := translate.ChatInputText(req.Messages)

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	g.runOpenAIGeneration(w, r, req.Model, text, req.Stream, nativeBody, "/api/chat",
		func(line []byte) (streamguard.Chunk, error) {
			resp, err := translate.DecodeNativeChatResponse(line)
			if err != nil {
				return streamguard.Chunk{}, err
			}
			chunk := translate.ChatStreamChunkFromNative(id, resp.Model, created, resp)
			raw, _ := json.Marshal(chunk)
			return streamguard.Chunk{Raw: []byte("data: " + string(raw) + "\n\n"), Text: resp.Message.Content, Done: resp.Done}, nil
		},
		func(raw []byte) (string, []byte) {
			resp, _ := translate.DecodeNativeChatResponse(raw)
			out, _ := json.Marshal(translate.ChatResponseFromNative(id, resp, translate.OpenAIUsage{}, time.Now()))
			return resp.Message.Content, out
		},
	)
}

func (g *Gateway) handleOpenAICompletions(w http.ResponseWriter, r *http.Request) {
	var req translate.CompletionRequest
	body, err := readBody(r, g.maxBody())
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeOpenAIError(w, kindBadRequest, "malformed request body", nil)
		return
	}
	native := translate.CompletionRequestToNative(req)
	nativeBody, _ := json.Marshal(native)

	id := "cmpl-" + uuid.NewString()
	created := time.Now().Unix()

	g.runOpenAIGeneration(w, r, req.Model, req.Prompt, req.Stream, nativeBody, "/api/generate",
		func(line []byte) (streamguard.Chunk, error) {
			resp, err := translate.DecodeNativeGenerateResponse(line)
			if err != nil {
				return streamguard.Chunk{}, err
			}
			chunk := translate.CompletionStreamChunkFromNative(id, resp.Model, created, resp)
			raw, _ := json.Marshal(chunk)
			return streamguard.Chunk{Raw: []byte("data: " + string(raw) + "\n\n"), Text: resp.Response, Done: resp.Done}, nil
		},
		func(raw []byte) (string, []byte) {
			resp, _ := translate.DecodeNativeGenerateResponse(raw)
			out, _ := json.Marshal(translate.CompletionResponseFromNative(id, resp, translate.OpenAIUsage{}, time.Now()))
			return resp.Response, out
		},
	)
}

// runOpenAIGeneration mirrors runNativeGeneration but produces SSE framing
// and OpenAI-shaped non-streaming bodies.
func (g *Gateway) runOpenAIGeneration(w http.ResponseWriter, r *http.Request, model, inputText string, streaming bool, nativeBody []byte, path string, extract streamguard.ExtractFunc, wrapFinal func([]byte) (text string, wrapped []byte)) {
	g.deps.Metrics.RecordRequest(string(dialectOpenAI), path)
	start := time.Now()
	ctx := r.Context()

	if allowed, failed := g.inputScan(ctx, inputText); !allowed {
		g.writeBlocked(w, r, kindInputBlocked, dialectOpenAI, failed)
		return
	}

	ticket, ok := g.acquireAdmission(ctx, w, r, dialectOpenAI, model)
	if !ok {
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			g.deps.Admission.Release(ticket)
		}
	}
	defer release()

	header := r.Header.Clone()
	header.Set("Content-Type", "application/json")
	up, err := g.deps.Upstream.Forward(ctx, http.MethodPost, path, header, bytes.NewReader(nativeBody), streaming)
	if err != nil {
		release()
		g.writeUpstreamErr(w, r, dialectOpenAI, err)
		return
	}

	if up.StatusCode() >= 400 {
		release()
		writeOpenAIError(w, kindUpstreamError, "upstream returned an error", nil)
		up.Cancel()
		return
	}

	if !streaming {
		defer release()
		raw, err := io.ReadAll(up.Body())
		up.Cancel()
		if err != nil {
			writeOpenAIError(w, kindUnavailable, "upstream read failed", nil)
			return
		}
		text, wrapped := wrapFinal(raw)
		if g.deps.OutputEnabled && text != "" {
			fp := cache.Fingerprint(scanner.SideOutput, text)
			verdict, err := g.deps.Cache.Compute(ctx, fp, g.deps.CacheTTL, func() (*scanner.Result, error) {
				return g.deps.OutputPipeline.Run(ctx, inputText, text), nil
			})
			if err == nil && !verdict.Allowed {
				g.deps.Metrics.RecordBlocked(string(kindOutputBlocked))
				writeOpenAIError(w, kindOutputBlocked, "response blocked by content-safety policy", verdict.FailedScanners())
				g.deps.Metrics.RecordCompletion(string(dialectOpenAI), 0, time.Since(start))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(wrapped)
		g.deps.Metrics.RecordCompletion(string(dialectOpenAI), 0, time.Since(start))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	result := streamguard.Run(ctx, streamguard.Config{
		Prompt:          inputText,
		ScanWindowBytes: g.deps.ScanWindowBytes,
		Cache:           g.deps.Cache,
		Pipeline:        g.deps.OutputPipeline,
		Extract:         extract,
		TerminalFrame:   openaiTerminalFrame,
		CacheTTL:        g.deps.CacheTTL,
		IdleTimeout:     g.deps.UpstreamIdle,
	}, up, flushWriter{w, flusher})
	release()
	if !result.Blocked {
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
	g.deps.Metrics.RecordCompletion(string(dialectOpenAI), 0, time.Since(start))
	if result.Blocked {
		g.deps.Metrics.RecordBlocked(string(kindOutputBlocked))
		g.deps.Audit.Log(security.AuditEvent{Type: security.EventScanBlocked, RemoteAddr: r.RemoteAddr, Path: r.URL.Path, Model: model})
	}
}

func (g *Gateway) handleOpenAIEmbeddings(w http.ResponseWriter, r *http.Request) {
	g.deps.Metrics.RecordRequest(string(dialectOpenAI), "/v1/embeddings")
	var req translate.OpenAIEmbeddingsRequest
	body, err := readBody(r, g.maxBody())
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeOpenAIError(w, kindBadRequest, "malformed request body", nil)
		return
	}

	text := translate.EmbedInputText(req.Input)
	if allowed, failed := g.inputScan(r.Context(), text); !allowed {
		g.writeBlocked(w, r, kindInputBlocked, dialectOpenAI, failed)
		return
	}

	native := translate.EmbeddingsRequestToNative(req)
	nativeBody, _ := json.Marshal(native)
	up, err := g.deps.Upstream.Forward(r.Context(), http.MethodPost, "/api/embed", nil, bytes.NewReader(nativeBody), false)
	if err != nil {
		g.writeUpstreamErr(w, r, dialectOpenAI, err)
		return
	}
	defer up.Cancel()
	if up.StatusCode() >= 400 {
		writeOpenAIError(w, kindUpstreamError, "upstream returned an error", nil)
		return
	}

	var nativeResp translate.NativeEmbedResponse
	if err := json.NewDecoder(up.Body()).Decode(&nativeResp); err != nil {
		writeOpenAIError(w, kindUnavailable, "upstream returned a malformed response", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(translate.EmbeddingsResponseFromNative(nativeResp))
}

func (g *Gateway) handleOpenAIModels(w http.ResponseWriter, r *http.Request) {
	g.deps.Metrics.RecordRequest(string(dialectOpenAI), "/v1/models")
	up, err := g.deps.Upstream.Forward(r.Context(), http.MethodGet, "/api/tags", nil, nil, false)
	if err != nil {
		g.writeUpstreamErr(w, r, dialectOpenAI, err)
		return
	}
	defer up.Cancel()
	if up.StatusCode() >= 400 {
		writeOpenAIError(w, kindUpstreamError, "upstream returned an error", nil)
		return
	}

	var tags translate.NativeTagsResponse
	if err := json.NewDecoder(up.Body()).Decode(&tags); err != nil {
		writeOpenAIError(w, kindUnavailable, "upstream returned a malformed response", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(translate.ModelsResponseFromNative(tags, time.Now().Unix()))
}

func (g *Gateway) maxBody() int64 {
	return g.cfg.MaxBodyBytes
}
