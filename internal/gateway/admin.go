package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cortexshield/llmguard/internal/admission"
	"github.com/cortexshield/llmguard/internal/security"
)

// handleCacheClear implements POST /admin/cache/clear: empties the local
// scan-verdict cache tier.
func (g *Gateway) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	g.deps.Cache.Clear()
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventConfigChange,
		RemoteAddr: r.RemoteAddr,
		Detail:     "cache cleared",
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleCacheCleanup implements POST /admin/cache/cleanup: sweeps expired
// entries without discarding live ones.
func (g *Gateway) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed := g.deps.Cache.Sweep()
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventConfigChange,
		RemoteAddr: r.RemoteAddr,
		Detail:     "cache cleanup",
		Metadata:   map[string]string{"removed": strconv.Itoa(removed)},
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

// handleQueueStats implements GET /queue/stats: the per-model admission snapshot.
func (g *Gateway) handleQueueStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.deps.Admission.Snapshot())
}

// handleQueueMemory implements GET /queue/memory: the auto-sizing
// parallel-limit inputs, for operator visibility into why a model ended
// up at its current limit.
func (g *Gateway) handleQueueMemory(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.deps.Admission.Snapshot())
}

// queueResetRequest is the body of POST /admin/queue/reset.
type queueResetRequest struct {
	Model string `json:"model"`
}

// handleQueueReset implements POST /admin/queue/reset.
func (g *Gateway) handleQueueReset(w http.ResponseWriter, r *http.Request) {
	var req queueResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeNativeError(w, kindBadRequest, "model is required", nil)
		return
	}
	g.deps.Admission.Reset(req.Model)
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventConfigChange,
		RemoteAddr: r.RemoteAddr,
		Model:      req.Model,
		Detail:     "queue reset",
	})
	w.WriteHeader(http.StatusNoContent)
}

// queueUpdateRequest is the body of POST /admin/queue/update.
type queueUpdateRequest struct {
	Model         string `json:"model"`
	ParallelLimit *int   `json:"parallel_limit,omitempty"`
	QueueLimit    *int   `json:"queue_limit,omitempty"`
}

// handleQueueUpdate implements POST /admin/queue/update. Both limits are
// optional; whichever is omitted keeps the queue's current value.
func (g *Gateway) handleQueueUpdate(w http.ResponseWriter, r *http.Request) {
	var req queueUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeNativeError(w, kindBadRequest, "model is required", nil)
		return
	}

	current := admission.Limits{}
	for _, snap := range g.deps.Admission.Snapshot() {
		if snap.Model == req.Model {
			current = admission.Limits{ParallelLimit: snap.ParallelLimit, QueueLimit: snap.QueueLimit}
		}
	}
	if req.ParallelLimit != nil {
		current.ParallelLimit = *req.ParallelLimit
	}
	if req.QueueLimit != nil {
		current.QueueLimit = *req.QueueLimit
	}

	if !g.deps.Admission.UpdateLimits(req.Model, current) {
		writeNativeError(w, kindBadRequest, "model has no active queue yet", nil)
		return
	}
	g.deps.Audit.Log(security.AuditEvent{
		Type:       security.EventConfigChange,
		RemoteAddr: r.RemoteAddr,
		Model:      req.Model,
		Detail:     "queue limits updated",
	})
	w.WriteHeader(http.StatusNoContent)
}
