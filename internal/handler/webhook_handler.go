package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/tansinh/switchboard/internal/ingest"
	"github.com/tansinh/switchboard/internal/model"
)

// Ingestor records call events delivered by the telephony provider.
type Ingestor interface {
	Ingest(ctx context.Context, events []model.CallEvent) ingest.Result
}

// WebhookHandler receives call events from the telephony provider
type WebhookHandler struct {
	ingestor Ingestor
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingestor Ingestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// maxWebhookBody bounds provider payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// Receive handles /webhooks/call-events. The provider treats any non-200 as
// a delivery failure and retries aggressively, so every outcome including a
// malformed body acknowledges with 200.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Warn("Failed to read webhook body", "error", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "could not read body",
		})
		return
	}

	events, err := ingest.ParseCallEvents(body)
	if err != nil {
		slog.Warn("Unparseable webhook payload",
			"error", err,
			"body_bytes", len(body),
		)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "could not parse payload",
		})
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "no call data in payload",
		})
		return
	}

	result := h.ingestor.Ingest(r.Context(), events)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}
