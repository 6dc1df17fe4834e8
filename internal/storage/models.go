package storage

import (
	"time"

	"github.com/tidwall/gjson"
)

// TranscriptionStatus is the lifecycle stage of a session's transcription.
type TranscriptionStatus string

const (
	StatusPending    TranscriptionStatus = "pending"
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusFailed     TranscriptionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TranscriptionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one recorded meeting attempt and its pipeline state.
type Session struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	ProjectID       string              `json:"projectId,omitempty"`
	Title           string              `json:"title"`
	StoragePath     string              `json:"storagePath"`
	FileSize        int64               `json:"fileSize"`
	Duration        float64             `json:"duration"`
	Status          TranscriptionStatus `json:"transcriptionStatus"`
	Transcript      string              `json:"transcript,omitempty"`
	Confidence      float64             `json:"confidence,omitempty"`
	ProviderJobID   string              `json:"providerJobId,omitempty"`
	LastError       string              `json:"lastError,omitempty"`
	AIProcessed     bool                `json:"aiProcessed"`
	ProcessingError string              `json:"processingError,omitempty"`
	Metadata        string              `json:"-"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// EffectiveProjectID returns the session's project association, consulting the
// structured column first and falling back to metadata.projectId. All readers
// go through this accessor instead of duplicating the fallback per call site.
func (s *Session) EffectiveProjectID() string {
	if s.ProjectID != "" {
		return s.ProjectID
	}
	return gjson.Get(s.Metadata, "projectId").String()
}

// Meeting is the durable artifact of successful AI extraction.
type Meeting struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	KeyPoints   []string  `json:"keyPoints"`
	ActionItems []string  `json:"actionItems"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Task is a unit of work extracted from a meeting, belonging to a project.
type Task struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	Priority        string    `json:"priority"`
	DueDate         time.Time `json:"dueDate"`
	SourceMeetingID string    `json:"sourceMeetingId,omitempty"`
	AIGenerated     bool      `json:"aiGenerated"`
	CreatedAt       time.Time `json:"createdAt"`
}
