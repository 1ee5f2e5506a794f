package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with every endpoint in §6 wired. The
// IP gate is the only ingress middleware (spec §1: "does not authenticate
// or authorize clients" — the allow-list is the sole access control).
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if g.deps.IPGate != nil {
		r.Use(g.deps.IPGate.Middleware)
	}

	// Native (Ollama-compatible) generation surface, guarded.
	r.Post("/api/generate", g.handleGenerate)
	r.Post("/api/chat", g.handleChat)
	r.Post("/api/embed", g.handleEmbed)

	// Native model-management surface — passthrough, no guard scanning
	// (spec §6: "Model management (passthrough, no guard scanning)").
	r.Post("/api/pull", g.handlePassthrough)
	r.Post("/api/push", g.handlePassthrough)
	r.Post("/api/create", g.handlePassthrough)
	r.Get("/api/tags", g.handlePassthrough)
	r.Post("/api/show", g.handlePassthrough)
	r.Delete("/api/delete", g.handlePassthrough)
	r.Post("/api/copy", g.handlePassthrough)
	r.Get("/api/ps", g.handlePassthrough)
	r.Get("/api/version", g.handlePassthrough)

	// OpenAI-compatible generation surface, guarded.
	r.Post("/v1/chat/completions", g.handleOpenAIChatCompletions)
	r.Post("/v1/completions", g.handleOpenAICompletions)
	r.Post("/v1/embeddings", g.handleOpenAIEmbeddings)
	r.Get("/v1/models", g.handleOpenAIModels)

	// Admin and observability surface. No client auth gates these per
	// spec §1's explicit non-goal; operators are expected to bind the
	// gateway to a private interface and rely on the IP allow-list.
	r.Get("/health", g.handleHealth)
	r.Get("/stats", g.handleStats)
	r.Get("/config", g.handleConfig)
	r.Post("/admin/cache/clear", g.handleCacheClear)
	r.Post("/admin/cache/cleanup", g.handleCacheCleanup)
	r.Get("/queue/stats", g.handleQueueStats)
	r.Get("/queue/memory", g.handleQueueMemory)
	r.Post("/admin/queue/reset", g.handleQueueReset)
	r.Post("/admin/queue/update", g.handleQueueUpdate)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
