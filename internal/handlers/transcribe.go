package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/storage"
	"meetscribe/internal/stt"
)

// TranscribeHandler exposes the transcription pipeline over HTTP: submission,
// raw provider status, and session-bound reconciliation.
type TranscribeHandler struct {
	transcriber *pipeline.Transcriber
	provider    stt.Provider
}

// NewTranscribeHandler creates a new TranscribeHandler.
func NewTranscribeHandler(transcriber *pipeline.Transcriber, provider stt.Provider) *TranscribeHandler {
	return &TranscribeHandler{transcriber: transcriber, provider: provider}
}

// SubmitRequest is the POST /api/transcribe body.
type SubmitRequest struct {
	SessionID    string `json:"sessionId"`
	RecordingURL string `json:"recordingUrl"`
}

// SubmitResponse carries the provider job id back to the caller.
type SubmitResponse struct {
	TranscriptID string `json:"transcriptId"`
}

// StatusResponse is the raw provider status passthrough.
type StatusResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ReconcileRequest is the PUT /api/transcribe body.
type ReconcileRequest struct {
	SessionID string `json:"sessionId"`
}

// ReconcileResponse reports the session's transcription state after a
// reconcile pass.
type ReconcileResponse struct {
	Status     storage.TranscriptionStatus `json:"status"`
	Text       string                      `json:"text,omitempty"`
	Confidence float64                     `json:"confidence,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// Submit handles POST /api/transcribe.
func (h *TranscribeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" || req.RecordingURL == "" {
		writeError(w, http.StatusBadRequest, "sessionId and recordingUrl are required")
		return
	}

	jobID, err := h.transcriber.Submit(ctx, req.SessionID, req.RecordingURL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to submit transcription", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to submit transcription")
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{TranscriptID: jobID})
}

// Status handles GET /api/transcribe?transcriptId=.
func (h *TranscribeHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	transcriptID := r.URL.Query().Get("transcriptId")
	if transcriptID == "" {
		writeError(w, http.StatusBadRequest, "transcriptId is required")
		return
	}

	job, err := h.provider.Poll(ctx, transcriptID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to poll transcription", "transcript_id", transcriptID, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to poll transcription provider")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		ID:         job.ID,
		Status:     string(job.Status),
		Text:       job.Text,
		Confidence: job.Confidence,
		Error:      job.Error,
	})
}

// Reconcile handles PUT /api/transcribe. Unlike Status it writes terminal
// provider results back to the session row.
func (h *TranscribeHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	session, err := h.transcriber.Reconcile(ctx, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, pipeline.ErrNeverStarted):
			writeError(w, http.StatusConflict, "Transcription was never submitted for this session")
		default:
			logger.ErrorContext(ctx, "failed to reconcile transcription", "session_id", req.SessionID, "error", err)
			writeError(w, http.StatusBadGateway, "Failed to reconcile transcription")
		}
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{
		Status:     session.Status,
		Text:       session.Transcript,
		Confidence: session.Confidence,
		Error:      session.LastError,
	})
}
