package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_meeting_store.go -package=mocks meetscribe/internal/storage MeetingStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// MeetingStore defines the interface for meeting storage operations.
type MeetingStore interface {
	// Insert creates the meeting row for a session. Inserting twice for the
	// same session is a no-op that preserves the first row.
	Insert(ctx context.Context, meeting *Meeting) error
	// GetBySessionID gets the meeting for a session.
	// Returns nil and ErrNotFound if the session has no meeting.
	GetBySessionID(ctx context.Context, sessionID string) (*Meeting, error)
}

// MeetingRepo provides methods for meeting operations.
// It implements the MeetingStore interface.
type MeetingRepo struct {
	db *sql.DB
}

// NewMeetingRepo creates a new MeetingRepo.
func NewMeetingRepo(db *sql.DB) *MeetingRepo {
	return &MeetingRepo{db: db}
}

// Insert creates the meeting row. The UNIQUE constraint on session_id plus
// ON CONFLICT DO NOTHING makes a retried materializer run safe: the row from
// the first successful attempt survives untouched.
func (r *MeetingRepo) Insert(ctx context.Context, meeting *Meeting) error {
	keyPoints, err := json.Marshal(meeting.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal key points: %w", err)
	}
	actionItems, err := json.Marshal(meeting.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to marshal action items: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO meetings (id, session_id, title, summary, key_points, action_items)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO NOTHING`,
		meeting.ID, meeting.SessionID, meeting.Title, meeting.Summary,
		string(keyPoints), string(actionItems),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

// GetBySessionID gets the meeting for a session.
func (r *MeetingRepo) GetBySessionID(ctx context.Context, sessionID string) (*Meeting, error) {
	var m Meeting
	var keyPoints, actionItems, createdAtStr string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, title, summary, key_points, action_items, created_at
		 FROM meetings WHERE session_id = ?`,
		sessionID,
	).Scan(&m.ID, &m.SessionID, &m.Title, &m.Summary, &keyPoints, &actionItems, &createdAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meeting: %w", err)
	}

	if err := json.Unmarshal([]byte(keyPoints), &m.KeyPoints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key points: %w", err)
	}
	if err := json.Unmarshal([]byte(actionItems), &m.ActionItems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action items: %w", err)
	}
	if m.CreatedAt, err = parseSQLiteTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	return &m, nil
}
