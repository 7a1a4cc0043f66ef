package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// SessionCounter reports how many reconciliation sessions are in progress.
type SessionCounter interface {
	ActiveCount() int
}

// HealthChecker provides health and readiness checks.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool
	sessions  atomic.Pointer[SessionCounter]
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetSessionCounter attaches the source of the active session count.
func (h *HealthChecker) SetSessionCounter(counter SessionCounter) {
	h.sessions.Store(&counter)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	ActiveSessions *int   `json:"active_sessions,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (h *HealthChecker) activeSessions() *int {
	counter := h.sessions.Load()
	if counter == nil || *counter == nil {
		return nil
	}
	n := (*counter).ActiveCount()
	return &n
}

func writeJSON(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:         "healthy",
			Uptime:         time.Since(h.startTime).String(),
			ActiveSessions: h.activeSessions(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}

		writeJSON(w, http.StatusOK, HealthResponse{
			Status:         "ready",
			Uptime:         time.Since(h.startTime).String(),
			ActiveSessions: h.activeSessions(),
		})
	}
}
