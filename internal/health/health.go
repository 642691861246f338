// Package health serves the liveness and readiness probes of the phone
// agent. /healthz answers 200 whenever the process serves HTTP;
// /readyz runs the registered dependency checks (database, synthesis
// cache, provider credentials) and fails with 503 when any of them
// does.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkBudget bounds one readiness check.
const checkBudget = 5 * time.Second

// Check probes one dependency. It must honor ctx cancellation and
// return nil when the dependency is usable.
type Check func(ctx context.Context) error

type checkReport struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkReport `json:"checks,omitempty"`
}

// Handler evaluates named readiness checks. Safe for concurrent use.
type Handler struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// New creates an empty Handler; register checks with AddCheck.
func New() *Handler {
	return &Handler{checks: make(map[string]Check)}
}

// AddCheck registers a named readiness check, replacing any previous
// check under the same name.
func (h *Handler) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every registered check with its own deadline and reports
// 503 when at least one fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	out := report{Status: "ok", Checks: make(map[string]checkReport, len(checks))}
	status := http.StatusOK
	for name, check := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkBudget)
		err := check(ctx)
		cancel()
		if err != nil {
			out.Checks[name] = checkReport{Status: "fail", Error: err.Error()}
			out.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[name] = checkReport{Status: "ok"}
	}
	writeJSON(w, status, out)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
