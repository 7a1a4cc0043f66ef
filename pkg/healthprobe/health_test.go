package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

type fixedCounter int

func (f fixedCounter) ActiveCount() int { return int(f) }

func decode(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var resp HealthResponse
	err := json.NewDecoder(w.Body).Decode(&resp)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestNew(t *testing.T) {
	hc := New()

	if time.Since(hc.startTime) > 1*time.Second {
		t.Errorf("Start time is too old: %v", hc.startTime)
	}

	if hc.ready.Load() {
		t.Error("HealthChecker should not be ready by default")
	}
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	hc := New()

	for _, ready := range []bool{false, true} {
		hc.SetReady(ready)

		w := httptest.NewRecorder()
		hc.Health()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Health status = %d, want %d (ready=%v)", w.Code, http.StatusOK, ready)
		}

		resp := decode(t, w)
		if resp.Status != "healthy" {
			t.Errorf("Status = %s, want healthy", resp.Status)
		}
		if resp.Uptime == "" {
			t.Error("Uptime is empty")
		}
		if resp.ActiveSessions != nil {
			t.Error("ActiveSessions should be omitted without a counter")
		}
	}
}

func TestReady_StateChanges(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	tests := []struct {
		name       string
		ready      bool
		wantCode   int
		wantStatus string
	}{
		{name: "starting", ready: false, wantCode: http.StatusServiceUnavailable, wantStatus: "not_ready"},
		{name: "ready", ready: true, wantCode: http.StatusOK, wantStatus: "ready"},
		{name: "draining", ready: false, wantCode: http.StatusServiceUnavailable, wantStatus: "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc.SetReady(tt.ready)

			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("Ready status = %d, want %d", w.Code, tt.wantCode)
			}

			resp := decode(t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if !tt.ready && resp.Message == "" {
				t.Error("Message is empty for not_ready state")
			}
		})
	}
}

func TestHealth_ReportsActiveSessions(t *testing.T) {
	hc := New()
	hc.SetReady(true)
	hc.SetSessionCounter(fixedCounter(7))

	for _, handler := range []http.HandlerFunc{hc.Health(), hc.Ready()} {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

		resp := decode(t, w)
		if resp.ActiveSessions == nil || *resp.ActiveSessions != 7 {
			t.Errorf("ActiveSessions = %v, want 7", resp.ActiveSessions)
		}
	}
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			hc.SetReady(i%2 == 0)
			hc.SetSessionCounter(fixedCounter(i))
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		}
		done <- true
	}()

	<-done
	<-done
}
