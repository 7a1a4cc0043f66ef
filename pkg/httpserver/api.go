package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/mselser95/fill-reconciler/internal/reconcile"
	"github.com/mselser95/fill-reconciler/internal/storage"
	"github.com/mselser95/fill-reconciler/pkg/types"
	"go.uber.org/zap"
)

// SessionManager starts and tracks reconciliation sessions for the API.
type SessionManager interface {
	// Submit registers a session and runs it in the background.
	Submit(intent types.OrderIntent, timeout time.Duration) (reconcile.SessionInfo, error)
	ActiveSessions() []reconcile.SessionInfo
	Abort(orderID string) bool
}

type apiHandler struct {
	sessions SessionManager
	outcomes storage.Reader
	logger   *zap.Logger
}

// ReconcileRequest is the body of POST /api/reconcile.
type ReconcileRequest struct {
	OrderID        string    `json:"order_id"`
	Symbol         string    `json:"symbol"`
	Quantity       float64   `json:"quantity"`
	Side           string    `json:"side"`
	ReferencePrice float64   `json:"reference_price"`
	SubmittedAt    time.Time `json:"submitted_at"`
	Timeout        string    `json:"timeout,omitempty"` // Go duration; empty uses the default
	PositionBefore *float64  `json:"position_before,omitempty"`
}

// maxRequestBody caps the size of a reconcile request body.
const maxRequestBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.logger.Warn("response-encode-failed",
			zap.String("request-id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func (h *apiHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.sessions.ActiveSessions())
}

func (h *apiHandler) abortSession(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if !h.sessions.Abort(orderID) {
		h.writeError(w, r, http.StatusNotFound, fmt.Errorf("no active session for order %s", orderID))
		return
	}

	h.logger.Info("session-aborted-via-api", zap.String("order-id", orderID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) startReconcile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read request: %w", err))
		return
	}

	var req ReconcileRequest
	err = json.Unmarshal(body, &req)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	side, err := types.ParseSide(req.Side)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var timeout time.Duration
	if req.Timeout != "" {
		timeout, err = time.ParseDuration(req.Timeout)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("parse timeout: %w", err))
			return
		}
	}

	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	intent := types.OrderIntent{
		OrderID:        req.OrderID,
		Symbol:         req.Symbol,
		Quantity:       req.Quantity,
		Side:           side,
		ReferencePrice: req.ReferencePrice,
		SubmittedAt:    submittedAt,
		PositionBefore: req.PositionBefore,
	}

	info, err := h.sessions.Submit(intent, timeout)
	switch {
	case errors.Is(err, types.ErrInvalidIntent):
		h.writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, reconcile.ErrSessionExists):
		h.writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, reconcile.ErrEngineClosed):
		h.writeError(w, r, http.StatusServiceUnavailable, err)
	case err != nil:
		h.writeError(w, r, http.StatusInternalServerError, err)
	default:
		h.writeJSON(w, r, http.StatusAccepted, info)
	}
}

func (h *apiHandler) getOutcome(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	outcome, err := h.outcomes.LatestOutcome(r.Context(), orderID)
	switch {
	case errors.Is(err, storage.ErrOutcomeNotFound):
		h.writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		h.logger.Error("outcome-lookup-failed", zap.String("order-id", orderID), zap.Error(err))
		h.writeError(w, r, http.StatusInternalServerError, err)
	default:
		h.writeJSON(w, r, http.StatusOK, outcome)
	}
}
