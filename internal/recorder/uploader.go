package recorder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"meetscribe/internal/capture"
)

// Uploader drives one recording through the local store and up to the API.
// Every step is restartable: the chunks are persisted before upload begins,
// so a crash at any point leaves a session that Resume can finish.
type Uploader struct {
	store  *capture.Store
	client *Client
	cfg    *Config
}

// NewUploader creates an Uploader over the given store and API client.
func NewUploader(store *capture.Store, client *Client, cfg *Config) *Uploader {
	return &Uploader{store: store, client: client, cfg: cfg}
}

// Ingest chunks an audio file into the local store and returns the capture
// session. The file can be uploaded afterwards with Finish, or later with
// Resume if the process dies in between.
func (u *Uploader) Ingest(ctx context.Context, audioPath, title string) (*capture.Session, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	session := &capture.Session{
		ID:        uuid.New().String(),
		Title:     title,
		UserID:    u.cfg.UserID,
		ProjectID: u.cfg.ProjectID,
		State:     capture.StateRecording,
	}
	if session.Title == "" {
		session.Title = filepath.Base(audioPath)
	}
	if err := u.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	buf := make([]byte, u.cfg.ChunkSize)
	for index := 0; ; index++ {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := u.store.SaveChunk(ctx, session.ID, index, chunk); err != nil {
				return nil, err
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read recording: %w", err)
		}
	}

	session.State = capture.StateStopped
	if err := u.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Finish uploads a stopped session and removes it from the local store on
// success. Already uploaded chunks are skipped when rebuilding the payload
// cursor, so Finish after a partial Resume does no duplicate work.
func (u *Uploader) Finish(ctx context.Context, sessionID string) (*SessionResult, error) {
	session := u.store.Session(ctx, sessionID)
	if session == nil {
		return nil, fmt.Errorf("capture session %s not found", sessionID)
	}

	chunks := u.store.Chunks(ctx, sessionID)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("capture session %s has no audio", sessionID)
	}

	session.State = capture.StateUploading
	if err := u.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	for _, chunk := range chunks {
		payload.Write(chunk.Data)
	}

	result, err := u.client.Upload(ctx, UploadRequest{
		UserID:    session.UserID,
		ProjectID: session.ProjectID,
		Title:     session.Title,
		FileName:  session.ID + ".webm",
		Size:      int64(payload.Len()),
		Body:      &payload,
	})
	if err != nil {
		// Leave the session in the store for Resume
		return nil, err
	}

	for _, chunk := range chunks {
		if chunk.Uploaded {
			continue
		}
		if err := u.store.MarkChunkUploaded(ctx, sessionID, chunk.Index); err != nil {
			return nil, err
		}
	}
	if err := u.store.DeleteSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return result, nil
}

// Resume finishes every incomplete session in the local store. Returns the
// ids of the sessions that were successfully uploaded.
func (u *Uploader) Resume(ctx context.Context) ([]string, error) {
	sessions := u.store.IncompleteSessions(ctx)

	var finished []string
	for _, session := range sessions {
		if _, err := u.Finish(ctx, session.ID); err != nil {
			return finished, fmt.Errorf("failed to resume session %s: %w", session.ID, err)
		}
		finished = append(finished, session.ID)
	}
	return finished, nil
}
