// Package health tracks remote backend availability and serves it over HTTP.
//
// The [Monitor] probes backends on a long interval and owns the
// availability flags the routing layers consult. The [Handler] exposes two
// endpoints on the local status port:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — returns 200 only while every monitored backend is
//     available, with the per-backend state in the body.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "degraded") and a "backends" map.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// result is the JSON response body for health endpoints.
type result struct {
	Status    string            `json:"status"`
	Backends  map[string]string `json:"backends,omitempty"`
	LastProbe string            `json:"last_probe,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
}

// Handler serves the status endpoints from a [Monitor]'s state. Requests
// never trigger probes; they read the last round's snapshot, so the status
// port stays cheap to poll.
type Handler struct {
	monitor *Monitor
	started time.Time
}

// NewHandler creates a Handler over the monitor.
func NewHandler(m *Monitor) *Handler {
	return &Handler{monitor: m, started: time.Now()}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok", Uptime: time.Since(h.started).Round(time.Second).String()})
}

// Readyz reports the monitored backends. Degraded state still serves
// conversations through local engines, so the response distinguishes
// "degraded" (503) from dead.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	snapshot, lastProbe := h.monitor.Snapshot()

	backends := make(map[string]string, len(snapshot))
	allOK := true
	for name, ok := range snapshot {
		if ok {
			backends[name] = "available"
		} else {
			backends[name] = "unavailable"
			allOK = false
		}
	}

	res := result{
		Status:   "ok",
		Backends: backends,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	if !lastProbe.IsZero() {
		res.LastProbe = lastProbe.UTC().Format(time.RFC3339)
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
