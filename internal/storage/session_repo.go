package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_session_store.go -package=mocks meetscribe/internal/storage SessionStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// SessionStore defines the interface for session storage operations.
type SessionStore interface {
	// Create inserts a new session with transcription_status = pending.
	Create(ctx context.Context, session *Session) error
	// GetByID gets a session by id. Returns nil and ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*Session, error)
	// MarkSubmitted records the provider job id and moves the session to
	// processing. A no-op on sessions already in a terminal state.
	MarkSubmitted(ctx context.Context, id, providerJobID string) error
	// SetCompleted moves a non-terminal session to completed with its
	// transcript. Returns false when another writer got there first.
	SetCompleted(ctx context.Context, id, transcript string, confidence float64) (bool, error)
	// SetFailed moves a non-terminal session to failed with the provider's
	// error message. Returns false when another writer got there first.
	SetFailed(ctx context.Context, id, lastError string) (bool, error)
	// MarkProcessed flips the ai_processed idempotency guard. Returns false
	// when the session was already marked.
	MarkProcessed(ctx context.Context, id string) (bool, error)
	// SetProcessingError records the most recent extraction failure.
	SetProcessingError(ctx context.Context, id, message string) error
	// ListStuck returns non-terminal sessions created before the cutoff.
	ListStuck(ctx context.Context, cutoff time.Time) ([]*Session, error)
	// ListUnprocessed returns completed sessions not yet AI-processed.
	ListUnprocessed(ctx context.Context) ([]*Session, error)
}

// SessionRepo provides methods for session operations.
// It implements the SessionStore interface.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, user_id, COALESCE(project_id, ''), title, storage_path, file_size,
	duration, transcription_status, COALESCE(transcript, ''), COALESCE(confidence, 0),
	COALESCE(provider_job_id, ''), COALESCE(last_error, ''), ai_processed,
	COALESCE(processing_error, ''), metadata, created_at, updated_at`

// Create inserts a new session row. The status always starts at pending
// regardless of what the caller set on the struct.
func (r *SessionRepo) Create(ctx context.Context, session *Session) error {
	if session.Metadata == "" {
		session.Metadata = "{}"
	}
	session.Status = StatusPending

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, project_id, title, storage_path, file_size, duration, transcription_status, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		session.ID, session.UserID, nullable(session.ProjectID), session.Title,
		session.StoragePath, session.FileSize, session.Duration, session.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByID gets a session by id. Returns nil and ErrNotFound if not found.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// MarkSubmitted records the provider job id and moves the session to processing.
// The WHERE clause keeps the transition monotonic: a session that already
// reached completed or failed is left untouched.
func (r *SessionRepo) MarkSubmitted(ctx context.Context, id, providerJobID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET provider_job_id = ?, transcription_status = 'processing', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND transcription_status IN ('pending', 'processing')`,
		providerJobID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session submitted: %w", err)
	}
	return nil
}

// SetCompleted moves a non-terminal session to completed, storing the
// transcript and confidence. First terminal writer wins; a concurrent sweep
// racing a live poll sees false and treats it as already done.
func (r *SessionRepo) SetCompleted(ctx context.Context, id, transcript string, confidence float64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET transcription_status = 'completed', transcript = ?, confidence = ?, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND transcription_status IN ('pending', 'processing')`,
		transcript, confidence, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// SetFailed moves a non-terminal session to failed with the provider's error.
func (r *SessionRepo) SetFailed(ctx context.Context, id, lastError string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET transcription_status = 'failed', last_error = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND transcription_status IN ('pending', 'processing')`,
		lastError, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to fail session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed flips the ai_processed idempotency guard.
func (r *SessionRepo) MarkProcessed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ai_processed = 1, processing_error = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND ai_processed = 0`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// SetProcessingError records the most recent extraction failure without
// touching the ai_processed guard, leaving the session eligible for retry.
func (r *SessionRepo) SetProcessingError(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET processing_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		message, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record processing error: %w", err)
	}
	return nil
}

// ListStuck returns sessions still in pending or processing that were created
// before the cutoff. These are the recovery sweep's candidates.
func (r *SessionRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+` FROM sessions
		 WHERE transcription_status IN ('pending', 'processing') AND created_at < ?
		 ORDER BY created_at`,
		cutoff.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanSessions(rows)
}

// ListUnprocessed returns completed sessions with a transcript that have not
// been AI-processed yet.
func (r *SessionRepo) ListUnprocessed(ctx context.Context) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+` FROM sessions
		 WHERE transcription_status = 'completed' AND ai_processed = 0
		   AND transcript IS NOT NULL AND transcript != ''
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanSessions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var createdAtStr, updatedAtStr string
	var processed int

	err := row.Scan(&s.ID, &s.UserID, &s.ProjectID, &s.Title, &s.StoragePath,
		&s.FileSize, &s.Duration, &s.Status, &s.Transcript, &s.Confidence,
		&s.ProviderJobID, &s.LastError, &processed, &s.ProcessingError,
		&s.Metadata, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}
	s.AIProcessed = processed != 0

	if s.CreatedAt, err = parseSQLiteTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	if s.UpdatedAt, err = parseSQLiteTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// parseSQLiteTime parses a DATETIME column value. SQLite may hand back either
// its default format or RFC3339 depending on how the value was written.
func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
