package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tansinh/switchboard/internal/pipeline"
)

// PipelineRunner triggers one recording ingestion pass.
type PipelineRunner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// PipelineHandler handles manual pipeline triggers
type PipelineHandler struct {
	runner PipelineRunner
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(runner PipelineRunner) *PipelineHandler {
	return &PipelineHandler{runner: runner}
}

// Process handles POST /api/v1/recordings/process. The response reports the
// run outcome; overlapping triggers come back success with nothing run, since
// the already-running instance covers the same work.
func (h *PipelineHandler) Process(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.Run(r.Context())
	if err != nil {
		slog.Error("Pipeline run failed",
			"instance_id", summary.InstanceID,
			"error", err,
		)
		// The summary carries the failure detail; a transport error would
		// make the caller retry what already partially ran.
		writeJSON(w, http.StatusOK, summary)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
