// Package upload owns the creation of recording sessions: streaming the
// payload into object storage, writing the session row, and kicking off
// transcription. Two paths exist, chosen by payload size: small recordings
// arrive inline in one multipart request, large ones are streamed to storage
// first and the row is created in a second request.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/objectstore"
	"meetscribe/internal/storage"
)

// DirectUploadThreshold is the largest payload accepted on the inline path.
// The boundary is inclusive: a payload of exactly this size still goes inline.
const DirectUploadThreshold = 20 << 20

// ErrInvalidMetadata is returned when a caller-supplied metadata document is
// not valid JSON.
var ErrInvalidMetadata = errors.New("metadata is not valid JSON")

// ErrObjectMissing is returned by CreateForStored when the referenced object
// was never uploaded.
var ErrObjectMissing = errors.New("stored object not found")

// TranscriptionStarter is the slice of the pipeline the manager needs to
// fire submission after a session is created.
type TranscriptionStarter interface {
	Submit(ctx context.Context, sessionID, audioURL string) (string, error)
	PollUntilDone(ctx context.Context, sessionID string) (*storage.Session, error)
}

// CreateRequest carries the caller-supplied fields of a new session.
type CreateRequest struct {
	UserID    string
	ProjectID string
	Title     string
	FileName  string
	Duration  float64
	Metadata  string
}

// Manager creates recording sessions. See the package comment for the two
// creation paths.
type Manager struct {
	sessions    storage.SessionStore
	objects     objectstore.ObjectStore
	transcriber TranscriptionStarter
	baseURL     string
}

// NewManager creates a Manager. transcriber may be nil, in which case created
// sessions stay pending until something else submits them.
func NewManager(sessions storage.SessionStore, objects objectstore.ObjectStore, transcriber TranscriptionStarter, publicBaseURL string) *Manager {
	return &Manager{
		sessions:    sessions,
		objects:     objects,
		transcriber: transcriber,
		baseURL:     strings.TrimRight(publicBaseURL, "/"),
	}
}

// NeedsDirectUpload reports whether a payload of the given size must use the
// two-step direct path.
func NeedsDirectUpload(size int64) bool {
	return size > DirectUploadThreshold
}

// CreateWithPayload is the inline path: store the payload and create the
// session row in one call. If the row insert fails after the payload was
// written, the object is deleted so no orphaned storage remains.
func (m *Manager) CreateWithPayload(ctx context.Context, req CreateRequest, payload io.Reader) (*storage.Session, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sessionID := uuid.New().String()
	storagePath := storagePathFor(req.UserID, sessionID, req.FileName)

	size, err := m.objects.Put(ctx, storagePath, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}

	session, err := m.createRow(ctx, sessionID, req, storagePath, size)
	if err != nil {
		if delErr := m.objects.Delete(ctx, storagePath); delErr != nil {
			logger.ErrorContext(ctx, "failed to clean up recording after insert failure",
				"storage_path", storagePath, "error", delErr)
		}
		return nil, err
	}

	m.startTranscription(ctx, session)
	return session, nil
}

// StorePayload is step one of the direct path: stream the payload to storage
// without touching the database. The returned relative path is what the
// client hands back to CreateForStored.
func (m *Manager) StorePayload(ctx context.Context, userID, fileName string, payload io.Reader) (string, int64, error) {
	storagePath := storagePathFor(userID, uuid.New().String(), fileName)
	size, err := m.objects.Put(ctx, storagePath, payload)
	if err != nil {
		return "", 0, fmt.Errorf("failed to store recording: %w", err)
	}
	return storagePath, size, nil
}

// CreateForStored is step two of the direct path: create the session row for
// a payload already in storage. The object must exist; a dangling reference
// is rejected rather than producing a session that can never transcribe.
func (m *Manager) CreateForStored(ctx context.Context, req CreateRequest, storagePath string, fileSize int64) (*storage.Session, error) {
	exists, err := m.objects.Exists(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check stored object: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrObjectMissing, storagePath)
	}

	session, err := m.createRow(ctx, uuid.New().String(), req, storagePath, fileSize)
	if err != nil {
		return nil, err
	}

	m.startTranscription(ctx, session)
	return session, nil
}

// RecordingURL returns the public URL the transcription provider fetches the
// audio from.
func (m *Manager) RecordingURL(session *storage.Session) string {
	return m.baseURL + "/files/" + session.StoragePath
}

func (m *Manager) createRow(ctx context.Context, sessionID string, req CreateRequest, storagePath string, fileSize int64) (*storage.Session, error) {
	metadata, err := buildMetadata(req.Metadata, req.ProjectID)
	if err != nil {
		return nil, err
	}

	session := &storage.Session{
		ID:          sessionID,
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		StoragePath: storagePath,
		FileSize:    fileSize,
		Duration:    req.Duration,
		Metadata:    metadata,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// startTranscription fires submission without blocking the response. The
// session row already exists, so a dropped goroutine is recoverable by the
// stuck-transcription sweep.
func (m *Manager) startTranscription(ctx context.Context, session *storage.Session) {
	if m.transcriber == nil {
		return
	}
	logger := contextutil.LoggerFromContext(ctx)
	audioURL := m.RecordingURL(session)

	go func() {
		ctx := contextutil.WithLogger(context.Background(), logger)
		if _, err := m.transcriber.Submit(ctx, session.ID, audioURL); err != nil {
			logger.Error("failed to submit transcription", "session_id", session.ID, "error", err)
			return
		}
		if _, err := m.transcriber.PollUntilDone(ctx, session.ID); err != nil {
			logger.Warn("transcription did not finish inline, leaving to sweep",
				"session_id", session.ID, "error", err)
		}
	}()
}

// buildMetadata merges the project id into the caller's metadata document.
// The project lives in both the project_id column and metadata.projectId;
// readers of either location must agree.
func buildMetadata(metadata, projectID string) (string, error) {
	if metadata == "" {
		metadata = "{}"
	}
	if !gjson.Valid(metadata) {
		return "", ErrInvalidMetadata
	}
	if projectID == "" {
		return metadata, nil
	}
	merged, err := sjson.Set(metadata, "projectId", projectID)
	if err != nil {
		return "", fmt.Errorf("failed to set project id in metadata: %w", err)
	}
	return merged, nil
}

// storagePathFor builds the relative object key. Only the extension of the
// client file name is kept; the rest is replaced by the session id so keys
// never collide and never contain client-controlled path segments.
func storagePathFor(userID, sessionID, fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = ".webm"
	}
	return path.Join("recordings", userID, sessionID+ext)
}
