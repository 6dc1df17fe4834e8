package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/objectstore"
)

// FilesHandler serves stored recordings. The transcription provider fetches
// audio through this route, so it must stay reachable from outside.
type FilesHandler struct {
	objects objectstore.ObjectStore
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(objects objectstore.ObjectStore) *FilesHandler {
	return &FilesHandler{objects: objects}
}

// ServeHTTP handles GET /files/*.
func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	relPath := chi.URLParam(r, "*")
	if relPath == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	reader, err := h.objects.Open(ctx, relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, objectstore.ErrInvalidPath) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to open stored file", "path", relPath, "error", err)
		http.Error(w, "failed to open file", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		logger.WarnContext(ctx, "failed to stream stored file", "path", relPath, "error", err)
	}
}
