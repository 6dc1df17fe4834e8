package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/storage"
)

// ProcessHandler triggers AI extraction for one session.
type ProcessHandler struct {
	extractor *pipeline.Extractor
}

// NewProcessHandler creates a new ProcessHandler.
func NewProcessHandler(extractor *pipeline.Extractor) *ProcessHandler {
	return &ProcessHandler{extractor: extractor}
}

// ProcessRequest is the POST /api/process-recording body.
type ProcessRequest struct {
	SessionID string `json:"sessionId"`
}

// ServeHTTP handles POST /api/process-recording. The underlying extraction
// is idempotent, so clients may retry freely.
func (h *ProcessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	result, err := h.extractor.Process(ctx, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Session not found")
		case pipeline.IsNotReady(err):
			writeErrorDetails(w, http.StatusConflict, "Session is not ready for processing", err.Error())
		default:
			logger.ErrorContext(ctx, "extraction failed", "session_id", req.SessionID, "error", err)
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to process recording", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
