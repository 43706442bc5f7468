// Copyright 2025 Certen Protocol

package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus tracks the health of the relayer's dependencies for the
// /health endpoint: the KV store every processor cursor lives in, the
// optional Postgres store, and the lander pipeline itself.
type HealthStatus struct {
	mu            sync.RWMutex
	Status        string `json:"status"` // "ok", "degraded", "error"
	KVStore       string `json:"kvstore"`  // "connected", "disconnected"
	Database      string `json:"database"` // "connected", "disconnected", "disabled"
	Lander        string `json:"lander"`   // "running", "stopped", "unknown"
	UptimeSeconds int64  `json:"uptime_seconds"`
	startTime     time.Time
}

func newHealthStatus() *HealthStatus {
	return &HealthStatus{
		Status:    "starting",
		KVStore:   "unknown",
		Database:  "unknown",
		Lander:    "unknown",
		startTime: time.Now(),
	}
}

// SetKVStore records the KV store's connectivity and recomputes overall
// status.
func (h *HealthStatus) SetKVStore(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.KVStore = status
	h.updateOverallStatus()
}

// SetDatabase records the Postgres store's connectivity and recomputes
// overall status.
func (h *HealthStatus) SetDatabase(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Database = status
	h.updateOverallStatus()
}

// SetLander records the lander pipeline's run state and recomputes
// overall status.
func (h *HealthStatus) SetLander(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Lander = status
	h.updateOverallStatus()
}

// updateOverallStatus derives Status from each component's state. The KV
// store is critical (the relayer cannot make progress without it); the
// Postgres store is optional, so "disabled" never degrades overall
// health.
func (h *HealthStatus) updateOverallStatus() {
	if h.KVStore == "disconnected" {
		h.Status = "error"
		return
	}
	if h.Database == "disconnected" || h.Lander == "stopped" {
		h.Status = "degraded"
		return
	}
	if h.KVStore == "connected" && h.Lander == "running" {
		h.Status = "ok"
	}
}

func (h *HealthStatus) snapshot() HealthStatus {
	h.mu.Lock()
	h.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthStatus{
		Status:        h.Status,
		KVStore:       h.KVStore,
		Database:      h.Database,
		Lander:        h.Lander,
		UptimeSeconds: h.UptimeSeconds,
	}
}

// ServeHTTP handles GET /health, returning 200 for "ok"/"degraded" and
// 503 for "error" — a degraded relayer is still making some progress and
// shouldn't be pulled from rotation.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshot()

	w.Header().Set("Content-Type", "application/json")
	switch snap.Status {
	case "ok", "degraded":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(snap); err != nil {
		http.Error(w, `{"error":"failed to encode health status"}`, http.StatusInternalServerError)
	}
}
