package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cortexshield/llmguard/internal/admission"
)

// HealthResponse is the JSON response for GET /health (spec §6).
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// handleHealth implements GET /health: liveness only. The proxy has no
// dependency it must confirm reachable to serve model-management or
// passthrough traffic, so this always reports "ok" once the server is
// listening — unlike the teacher's provider-health-driven degraded state,
// which has no analogue here (a single upstream, not a provider chain).
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(g.startedAt).Round(time.Second).String(),
		Version: g.deps.Version,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// PublicConfig is the non-sensitive subset of the proxy's configuration
// surface exposed at GET /config — upstream credentials and cache/remote
// passwords are never included.
type PublicConfig struct {
	Bind               string `json:"bind"`
	UpstreamBaseURL    string `json:"upstream_base_url"`
	DefaultParallel    string `json:"admission_default_parallel"`
	DefaultQueueLimit  int    `json:"admission_default_queue_limit"`
	ScanInputEnabled   bool   `json:"scan_input_enabled"`
	ScanOutputEnabled  bool   `json:"scan_output_enabled"`
	ScanWindowBytes    int    `json:"scan_window_bytes"`
	CacheBackend       string `json:"cache_backend"`
	IPAllowlistEntries int    `json:"ip_allowlist_entries"`
}

// handleConfig implements GET /config.
func (g *Gateway) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.deps.PublicConfig)
}

// StatsResponse is the JSON response for GET /stats: cache stats, gateway
// metrics, and a per-model admission snapshot (spec §6, §9's "no strict
// consistency across counters is required").
type StatsResponse struct {
	Metrics     MetricsSnapshot       `json:"metrics"`
	CacheLocal  int                   `json:"cache_local_entries"`
	ModelQueues []admission.Snapshot  `json:"model_queues"`
}

// handleStats implements GET /stats.
func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	snapshots := g.deps.Admission.Snapshot()
	for _, s := range snapshots {
		g.deps.Metrics.SetQueueGauges(s.Model, s.InFlight, s.QueueDepth)
	}
	resp := StatsResponse{
		Metrics:     g.deps.Metrics.Snapshot(),
		CacheLocal:  g.deps.Cache.LocalLen(),
		ModelQueues: snapshots,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
