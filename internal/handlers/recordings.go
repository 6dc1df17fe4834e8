package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
	"meetscribe/internal/upload"
)

// maxMultipartMemory caps how much of a multipart body is buffered in memory
// before spilling to a temp file.
const maxMultipartMemory = 8 << 20

// RecordingsHandler handles recording session creation on both paths: the
// inline multipart path for small payloads and the two-step direct path for
// large ones.
type RecordingsHandler struct {
	manager *upload.Manager
}

// NewRecordingsHandler creates a new RecordingsHandler.
func NewRecordingsHandler(manager *upload.Manager) *RecordingsHandler {
	return &RecordingsHandler{manager: manager}
}

// SessionResponse is the creation response shared by both paths.
type SessionResponse struct {
	Success      bool             `json:"success"`
	Session      *storage.Session `json:"session"`
	RecordingURL string           `json:"recordingUrl"`
}

// UploadResponse is the direct-path step-one response.
type UploadResponse struct {
	FilePath string `json:"filePath"`
	FileSize int64  `json:"fileSize"`
}

// CreateSessionRequest is the direct-path step-two request body.
type CreateSessionRequest struct {
	UserID    string  `json:"userId"`
	ProjectID string  `json:"projectId,omitempty"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration,omitempty"`
	Metadata  string  `json:"metadata,omitempty"`
	FilePath  string  `json:"filePath"`
	FileSize  int64   `json:"fileSize"`
}

// CreateInline handles POST /api/recordings, the single-request path.
func (h *RecordingsHandler) CreateInline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()

	req := upload.CreateRequest{
		UserID:    r.FormValue("userId"),
		ProjectID: r.FormValue("projectId"),
		Title:     r.FormValue("title"),
		FileName:  header.Filename,
		Metadata:  r.FormValue("metadata"),
	}
	if req.UserID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "userId and title are required")
		return
	}
	if v := r.FormValue("duration"); v != "" {
		if req.Duration, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid duration")
			return
		}
	}
	if upload.NeedsDirectUpload(header.Size) {
		writeError(w, http.StatusRequestEntityTooLarge, "Payload exceeds the inline limit, use the direct upload path")
		return
	}

	session, err := h.manager.CreateWithPayload(ctx, req, file)
	if err != nil {
		if errors.Is(err, upload.ErrInvalidMetadata) {
			writeError(w, http.StatusBadRequest, "Invalid metadata")
			return
		}
		logger.ErrorContext(ctx, "failed to create recording session", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to create recording session", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		Success:      true,
		Session:      session,
		RecordingURL: h.manager.RecordingURL(session),
	})
}

// Upload handles POST /api/recordings/upload, the direct-path payload stream.
func (h *RecordingsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()

	userID := r.FormValue("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	filePath, size, err := h.manager.StorePayload(ctx, userID, header.Filename, file)
	if err != nil {
		logger.ErrorContext(ctx, "failed to store recording payload", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to store recording", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{FilePath: filePath, FileSize: size})
}

// CreateSession handles POST /api/recordings/create-session, the direct-path
// row creation for an already stored payload.
func (h *RecordingsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Title == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "userId, title and filePath are required")
		return
	}

	session, err := h.manager.CreateForStored(ctx, upload.CreateRequest{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Title:     req.Title,
		Duration:  req.Duration,
		Metadata:  req.Metadata,
	}, req.FilePath, req.FileSize)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrObjectMissing):
			writeError(w, http.StatusBadRequest, "Uploaded file not found")
		case errors.Is(err, upload.ErrInvalidMetadata):
			writeError(w, http.StatusBadRequest, "Invalid metadata")
		default:
			logger.ErrorContext(ctx, "failed to create recording session", "error", err)
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to create recording session", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		Success:      true,
		Session:      session,
		RecordingURL: h.manager.RecordingURL(session),
	})
}
