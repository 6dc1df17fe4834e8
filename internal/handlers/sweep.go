package handlers

import (
	"net/http"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/pipeline"
)

// SweepHandler exposes the maintenance sweeps so an external scheduler can
// drive them in addition to the in-process ticker.
type SweepHandler struct {
	recovery  *pipeline.Recovery
	extractor *pipeline.Extractor
}

// NewSweepHandler creates a new SweepHandler.
func NewSweepHandler(recovery *pipeline.Recovery, extractor *pipeline.Extractor) *SweepHandler {
	return &SweepHandler{recovery: recovery, extractor: extractor}
}

// FixStuck handles POST /api/fix-stuck-transcriptions.
func (h *SweepHandler) FixStuck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	summary, err := h.recovery.FixStuck(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "stuck transcription sweep failed", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to run recovery sweep", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ProcessUnprocessed handles POST /api/process-unprocessed.
func (h *SweepHandler) ProcessUnprocessed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	results, err := h.extractor.ProcessUnprocessed(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "unprocessed extraction sweep failed", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to run extraction sweep", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": len(results),
		"results":   results,
	})
}
