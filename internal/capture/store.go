// Package capture is the client-local backup store for in-progress
// recordings. It persists chunks and session metadata in a small SQLite file
// so a crash or reload loses at most the last partially-flushed chunk.
//
// Every read is best-effort: a broken backup degrades to "no crash recovery
// for this session", never to a failure of the recording in progress.
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"meetscribe/internal/contextutil"
)

// SessionState is the local lifecycle of a capture session.
type SessionState string

const (
	StateRecording SessionState = "recording"
	StatePaused    SessionState = "paused"
	StateStopped   SessionState = "stopped"
	StateUploading SessionState = "uploading"
)

// retentionCeiling bounds storage growth from abandoned recordings.
const retentionCeiling = 7 * 24 * time.Hour

// Session is the locally persisted metadata for one recording attempt.
type Session struct {
	ID        string
	Title     string
	UserID    string
	ProjectID string
	State     SessionState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one captured audio slice.
type Chunk struct {
	SessionID  string
	Index      int
	Data       []byte
	CapturedAt time.Time
	Uploaded   bool
}

// Store persists capture sessions and chunks.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the backup store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture store: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS capture_sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'recording',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS capture_chunks (
			session_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			data BLOB NOT NULL,
			captured_at INTEGER NOT NULL,
			uploaded INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, chunk_index)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate capture store: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveChunk durably persists a chunk keyed by (sessionID, index).
// Overwrites on key collision, so a re-flush after a retry is harmless.
func (s *Store) SaveChunk(ctx context.Context, sessionID string, index int, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capture_chunks (session_id, chunk_index, data, captured_at, uploaded)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (session_id, chunk_index) DO UPDATE SET data = excluded.data, captured_at = excluded.captured_at`,
		sessionID, index, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save chunk %d: %w", index, err)
	}
	return nil
}

// Chunks returns all chunks for a session ordered by chunk index. On read
// failure it logs and returns nil: the caller simply has nothing to resume.
func (s *Store) Chunks(ctx context.Context, sessionID string) []Chunk {
	logger := contextutil.LoggerFromContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, chunk_index, data, captured_at, uploaded
		 FROM capture_chunks WHERE session_id = ? ORDER BY chunk_index`,
		sessionID,
	)
	if err != nil {
		logger.WarnContext(ctx, "capture store read failed", "session_id", sessionID, "error", err)
		return nil
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var capturedAt int64
		var uploaded int
		if err := rows.Scan(&c.SessionID, &c.Index, &c.Data, &capturedAt, &uploaded); err != nil {
			logger.WarnContext(ctx, "capture chunk scan failed", "session_id", sessionID, "error", err)
			return nil
		}
		c.CapturedAt = time.Unix(capturedAt, 0)
		c.Uploaded = uploaded != 0
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		logger.WarnContext(ctx, "capture chunk iteration failed", "session_id", sessionID, "error", err)
		return nil
	}
	return chunks
}

// MarkChunkUploaded marks a chunk as durably uploaded so a resume pass does
// not re-upload it.
func (s *Store) MarkChunkUploaded(ctx context.Context, sessionID string, index int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE capture_chunks SET uploaded = 1 WHERE session_id = ? AND chunk_index = ?",
		sessionID, index,
	)
	if err != nil {
		return fmt.Errorf("failed to mark chunk %d uploaded: %w", index, err)
	}
	return nil
}

// SaveSession persists session-level metadata, overwriting any prior state.
func (s *Store) SaveSession(ctx context.Context, session *Session) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capture_sessions (id, title, user_id, project_id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 title = excluded.title, user_id = excluded.user_id, project_id = excluded.project_id,
		 state = excluded.state, updated_at = excluded.updated_at`,
		session.ID, session.Title, session.UserID, session.ProjectID, session.State, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save capture session: %w", err)
	}
	return nil
}

// Session retrieves session metadata, or nil when absent or unreadable.
func (s *Store) Session(ctx context.Context, sessionID string) *Session {
	logger := contextutil.LoggerFromContext(ctx)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, user_id, project_id, state, created_at, updated_at
		 FROM capture_sessions WHERE id = ?`,
		sessionID,
	)
	session, err := scanCaptureSession(row)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		logger.WarnContext(ctx, "capture session read failed", "session_id", sessionID, "error", err)
		return nil
	}
	return session
}

// IncompleteSessions returns every persisted session. Sessions are deleted
// once their upload is confirmed, so anything still here needs finishing.
// This is the crash-recovery entry point on next start.
func (s *Store) IncompleteSessions(ctx context.Context) []*Session {
	logger := contextutil.LoggerFromContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, user_id, project_id, state, created_at, updated_at
		 FROM capture_sessions ORDER BY created_at`,
	)
	if err != nil {
		logger.WarnContext(ctx, "capture store read failed", "error", err)
		return nil
	}
	defer func() {
		_ = rows.Close()
	}()

	var sessions []*Session
	for rows.Next() {
		session, err := scanCaptureSession(rows)
		if err != nil {
			logger.WarnContext(ctx, "capture session scan failed", "error", err)
			return nil
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		logger.WarnContext(ctx, "capture session iteration failed", "error", err)
		return nil
	}
	return sessions
}

// DeleteSession removes a session and all its chunks once durably uploaded.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM capture_chunks WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete capture chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM capture_sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete capture session: %w", err)
	}
	return nil
}

// CleanupOldSessions removes sessions older than the 7-day retention ceiling
// regardless of state. Returns the number of sessions removed.
func (s *Store) CleanupOldSessions(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-retentionCeiling).Unix()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM capture_sessions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query old capture sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan capture session id: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate old capture sessions: %w", err)
	}

	for _, id := range ids {
		if err := s.DeleteSession(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func scanCaptureSession(row interface{ Scan(...any) error }) (*Session, error) {
	var session Session
	var createdAt, updatedAt int64
	err := row.Scan(&session.ID, &session.Title, &session.UserID, &session.ProjectID,
		&session.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}
