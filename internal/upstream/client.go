// Package upstream implements the pooled, keep-alive HTTP client used to
// forward requests to the backend model server. Adapted from the
// teacher's OpenAI-compatible provider transport: same pooling and
// timeout-classification idiom, generalized from a single chat-completions
// endpoint to an arbitrary-path reverse-proxy passthrough.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// Config configures the shared Client.
type Config struct {
	BaseURL string

	// ConnectTimeout bounds dialing and waiting for response headers.
	ConnectTimeout time.Duration
	// IdleTimeout bounds how long a pooled connection sits idle before the
	// transport closes it.
	IdleTimeout time.Duration
	// TotalBodyTimeout bounds reading a non-streaming response body.
	// Streaming reads are exempt per spec: the client disconnect or a
	// violation abort is what ends a stream, not a fixed deadline.
	TotalBodyTimeout time.Duration

	MaxIdleConnsPerHost int
}

func (c *Config) defaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 90 * time.Second
	}
	if c.TotalBodyTimeout == 0 {
		c.TotalBodyTimeout = 5 * time.Minute
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 64
	}
}

// Client is a single process-wide pooled client forwarding to one upstream
// base URL. Construct once at startup, Close at shutdown.
type Client struct {
	baseURL string
	http    *http.Client
	cfg     Config
}

// New builds a Client. The returned *http.Transport is owned by this
// Client and closed by Close.
func New(cfg Config) *Client {
	cfg.defaults()
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
		IdleConnTimeout:       cfg.IdleTimeout,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 4,
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Transport: transport},
		cfg:     cfg,
	}
}

// Close releases all pooled idle connections. Safe to call once at
// shutdown; further Forward calls will simply open fresh connections.
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// ResponseHandle wraps an in-flight upstream response. Exactly one of
// Cancel or letting the body drain to EOF and calling Cancel anyway (it is
// idempotent) should happen per call.
type ResponseHandle struct {
	resp      *http.Response
	cancelCtx context.CancelFunc
	closed    atomic.Bool
}

// StatusCode returns the upstream response status.
func (h *ResponseHandle) StatusCode() int { return h.resp.StatusCode }

// Header returns the upstream response headers.
func (h *ResponseHandle) Header() http.Header { return h.resp.Header }

// Body returns the readable response stream. Do not call Cancel and read
// Body concurrently without synchronization on the caller's side — Cancel
// closes the underlying connection out from under any in-progress read.
func (h *ResponseHandle) Body() io.Reader { return h.resp.Body }

// Cancel immediately aborts the connection (closing it rather than letting
// it drain) and is safe to call more than once; only the first call has an
// effect. This is what frees backend compute the instant a streaming
// violation is detected.
func (h *ResponseHandle) Cancel() {
	if h.closed.CompareAndSwap(false, true) {
		h.cancelCtx()
		_ = h.resp.Body.Close()
	}
}

// Forward performs method/path/header/body passthrough to the upstream
// base URL. streaming disables the total-body timeout so long-lived NDJSON
// or SSE reads are not cut off mid-stream; the caller is still responsible
// for calling Cancel on violation or client disconnect.
func (c *Client) Forward(ctx context.Context, method, path string, header http.Header, body io.Reader, streaming bool) (*ResponseHandle, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	if !streaming && c.cfg.TotalBodyTimeout > 0 {
		var timeoutCancel context.CancelFunc
		reqCtx, timeoutCancel = context.WithTimeout(reqCtx, c.cfg.TotalBodyTimeout)
		outerCancel := cancel
		cancel = func() { timeoutCancel(); outerCancel() }
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	if header != nil {
		req.Header = header.Clone()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}

	return &ResponseHandle{resp: resp, cancelCtx: cancel}, nil
}
