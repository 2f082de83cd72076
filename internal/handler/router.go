package handler

import (
	"net/http"

	"github.com/tansinh/switchboard/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	slotHandler     *SlotHandler
	priorityHandler *PriorityHandler
	pipelineHandler *PipelineHandler
	webhookHandler  *WebhookHandler
	healthHandler   *HealthHandler
	corsConfig      middleware.CORSConfig
}

// NewRouter creates a new router
func NewRouter(
	slotHandler *SlotHandler,
	priorityHandler *PriorityHandler,
	pipelineHandler *PipelineHandler,
	webhookHandler *WebhookHandler,
	healthHandler *HealthHandler,
	corsConfig middleware.CORSConfig,
) *Router {
	return &Router{
		slotHandler:     slotHandler,
		priorityHandler: priorityHandler,
		pipelineHandler: pipelineHandler,
		webhookHandler:  webhookHandler,
		healthHandler:   healthHandler,
		corsConfig:      corsConfig,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints (no middleware)
	mux.HandleFunc("/health", rt.healthHandler.Health)
	mux.HandleFunc("/ready", rt.healthHandler.Ready)

	// Slot allocation
	mux.HandleFunc("/api/v1/slots/request", post(rt.slotHandler.Request))
	mux.HandleFunc("/api/v1/slots/heartbeat", post(rt.slotHandler.Heartbeat))
	mux.HandleFunc("/api/v1/slots/release", post(rt.slotHandler.Release))
	mux.HandleFunc("/api/v1/slots/status", get(rt.slotHandler.Status))

	// Priority membership
	mux.HandleFunc("/api/v1/priority", rt.handlePriority)
	mux.HandleFunc("/api/v1/priority/check", get(rt.priorityHandler.Check))
	mux.HandleFunc("/api/v1/priority/remove", post(rt.priorityHandler.Remove))

	// Recording pipeline
	mux.HandleFunc("/api/v1/recordings/process", post(rt.pipelineHandler.Process))

	// Provider webhook (handles its own methods)
	mux.HandleFunc("/webhooks/call-events", rt.webhookHandler.Receive)

	// Apply middleware (CORS first to handle preflight requests)
	handler := middleware.CORS(rt.corsConfig)(mux)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CorrelationID(handler)

	return handler
}

// handlePriority routes the priority collection endpoint
func (rt *Router) handlePriority(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.priorityHandler.List(w, r)
	case http.MethodPost:
		rt.priorityHandler.Add(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func post(next http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, next)
}

func get(next http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, next)
}

func method(verb string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != verb {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(w, r)
	}
}
