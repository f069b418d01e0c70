// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Readiness responses carry a top-level "status" field ("ok" or "fail") and
// a per-dependency "checks" object with each checker's outcome.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds a single readiness probe when its [Checker]
// carries no timeout of its own.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a named health check. The Check function returns nil when the
// dependency is healthy and an error describing the failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "postgres", "redis"). It
	// appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error

	// Timeout bounds one probe. Zero uses [DefaultCheckTimeout]. A slow
	// dependency can be given a shorter budget so one hung connection does
	// not stall the whole readiness response.
	Timeout time.Duration
}

// checkStatus is one dependency's outcome in the readiness response.
type checkStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string                 `json:"status"`
	Checks map[string]checkStatus `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request, sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{
		Status: "ok",
		Checks: make(map[string]checkStatus, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		if outcome := h.run(r.Context(), c); outcome.Status != "ok" {
			res.Checks[c.Name] = outcome
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = outcome
		}
	}

	writeJSON(w, status, res)
}

// run evaluates one checker under its timeout budget.
func (h *Handler) run(ctx context.Context, c Checker) checkStatus {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Check(ctx); err != nil {
		return checkStatus{Status: "fail", Error: err.Error()}
	}
	return checkStatus{Status: "ok"}
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
