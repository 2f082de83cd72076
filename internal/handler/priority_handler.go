package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tansinh/switchboard/internal/model"
)

// PriorityService manages the priority identity class.
type PriorityService interface {
	Add(ctx context.Context, identity, addedBy string) (*model.PriorityEntry, error)
	Remove(ctx context.Context, identity string) (bool, error)
	IsPriority(ctx context.Context, identity string) (bool, error)
	List(ctx context.Context) ([]model.PriorityEntry, error)
}

// PriorityHandler handles priority membership endpoints
type PriorityHandler struct {
	priorities PriorityService
}

// NewPriorityHandler creates a new priority handler
func NewPriorityHandler(priorities PriorityService) *PriorityHandler {
	return &PriorityHandler{priorities: priorities}
}

// PriorityRequest is the body for add and remove calls.
type PriorityRequest struct {
	Identity string `json:"identity"`
	AddedBy  string `json:"added_by,omitempty"`
}

// Add handles POST /api/v1/priority
func (h *PriorityHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req PriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	entry, err := h.priorities.Add(r.Context(), req.Identity, req.AddedBy)
	if err != nil {
		slog.Error("Failed to add priority identity",
			"identity", req.Identity,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to add priority identity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entry":   entry,
	})
}

// Remove handles POST /api/v1/priority/remove
func (h *PriorityHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req PriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	removed, err := h.priorities.Remove(r.Context(), req.Identity)
	if err != nil {
		slog.Error("Failed to remove priority identity",
			"identity", req.Identity,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to remove priority identity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"removed": removed,
	})
}

// Check handles GET /api/v1/priority/check?identity=...
func (h *PriorityHandler) Check(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")

	isPriority, err := h.priorities.IsPriority(r.Context(), identity)
	if err != nil {
		slog.Error("Priority check failed",
			"identity", identity,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "priority check failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity":    identity,
		"is_priority": isPriority,
	})
}

// List handles GET /api/v1/priority
func (h *PriorityHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.priorities.List(r.Context())
	if err != nil {
		slog.Error("Failed to list priority identities", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list priority identities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
