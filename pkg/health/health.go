// Package health provides liveness and readiness probe endpoints.
//
// Checks run on demand when a probe endpoint is hit, each bounded by its
// own timeout. The service starts not-ready; call SetReady(true) once
// initialization finishes and SetReady(false) at the start of shutdown to
// drain traffic.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []check
	readiness []check
}

// New creates a Health in the not-ready state.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a liveness check. Liveness answers "is the
// process functioning", for example a goroutine count ceiling.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a readiness check. Readiness answers "can the
// service do useful work", for example database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// LiveEndpoint serves the liveness probe.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := h.liveness
	h.mu.RUnlock()

	writeResponse(w, runChecks(r.Context(), checks))
}

// ReadyEndpoint serves the readiness probe. It fails while the manual gate
// is down regardless of check results.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := h.readiness
	h.mu.RUnlock()

	failures := runChecks(r.Context(), checks)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

func runChecks(ctx context.Context, checks []check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.fn(checkCtx)
		cancel()
		if err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
