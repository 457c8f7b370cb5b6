package api

import (
	"context"
	"encoding/json"
	"net/http"

	"parkhere/internal/auth"
	"parkhere/internal/entities"

	"github.com/gorilla/mux"
)

// SessionService is the slot ledger surface the handlers need.
type SessionService interface {
	StartSession(ctx context.Context, userID, vehicleID, locationID string) (*entities.SessionResponse, error)
	EndSession(ctx context.Context, userID, sessionID string) (*entities.ReceiptResponse, error)
	ActiveSession(ctx context.Context, userID string) (*entities.SessionResponse, error)
	ListSessions(ctx context.Context, userID string) ([]entities.SessionResponse, error)
	LocationAvailability(ctx context.Context, locationID, category string) (*entities.AvailabilityResponse, error)
}

type SessionHandler struct {
	Service SessionService
}

func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{Service: svc}
}

func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	sess, err := h.Service.StartSession(r.Context(), userID, req.VehicleID, req.LocationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := mux.Vars(r)["id"]
	receipt, err := h.Service.EndSession(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// GetActiveSession is also the recovery path for clients whose start call
// timed out with unknown outcome: query here instead of retrying blindly.
func (h *SessionHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sess, err := h.Service.ActiveSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": sess})
}

func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sessions, err := h.Service.ListSessions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	locationID := mux.Vars(r)["id"]
	category := r.URL.Query().Get("category")
	availability, err := h.Service.LocationAvailability(r.Context(), locationID, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}
