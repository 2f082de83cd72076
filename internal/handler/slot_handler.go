package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tansinh/switchboard/internal/allocator"
	"github.com/tansinh/switchboard/internal/model"
)

// SlotService arbitrates the shared telephony credential slots.
type SlotService interface {
	Request(ctx context.Context, sessionID, identity string) (allocator.Grant, error)
	Heartbeat(ctx context.Context, sessionID, identity string) (allocator.Grant, error)
	Release(ctx context.Context, sessionID string) error
	Status(ctx context.Context) ([]model.SlotStatus, error)
}

// SlotHandler handles slot allocation endpoints
type SlotHandler struct {
	slots SlotService
}

// NewSlotHandler creates a new slot handler
func NewSlotHandler(slots SlotService) *SlotHandler {
	return &SlotHandler{slots: slots}
}

// SlotRequest is the body for request and heartbeat calls.
type SlotRequest struct {
	SessionID      string `json:"session_id"`
	HolderIdentity string `json:"holder_identity,omitempty"`
}

// Request handles POST /api/v1/slots/request
func (h *SlotHandler) Request(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	grant, err := h.slots.Request(r.Context(), req.SessionID, req.HolderIdentity)
	if err != nil {
		slog.Error("Slot request failed",
			"session_id", req.SessionID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "slot allocation failed")
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// Heartbeat handles POST /api/v1/slots/heartbeat
func (h *SlotHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	grant, err := h.slots.Heartbeat(r.Context(), req.SessionID, req.HolderIdentity)
	if err != nil {
		slog.Error("Slot heartbeat failed",
			"session_id", req.SessionID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "heartbeat failed")
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// Release handles POST /api/v1/slots/release
func (h *SlotHandler) Release(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.slots.Release(r.Context(), req.SessionID); err != nil {
		slog.Error("Slot release failed",
			"session_id", req.SessionID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "release failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// Status handles GET /api/v1/slots/status
func (h *SlotHandler) Status(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.slots.Status(r.Context())
	if err != nil {
		slog.Error("Slot status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "status failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots": statuses,
	})
}

func (h *SlotHandler) decode(w http.ResponseWriter, r *http.Request) (SlotRequest, bool) {
	var req SlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return req, false
	}
	return req, true
}
