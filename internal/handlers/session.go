package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
)

// SessionHandler serves the persisted pipeline state of one session.
type SessionHandler struct {
	sessions storage.SessionStore
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions storage.SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// ServeHTTP handles GET /api/sessions/{sessionID}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	session, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to load session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}
