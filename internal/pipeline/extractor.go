package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
)

const (
	defaultPriority   = "medium"
	defaultDueOffset  = 7 * 24 * time.Hour
	taskInitialStatus = "todo"
)

// extractionNamespace seeds the deterministic ids for meetings and tasks.
// Deriving ids from the session means a retried run after a partial failure
// reproduces the same rows instead of duplicating them.
var extractionNamespace = uuid.MustParse("9c9b3f4e-6d2a-4c3e-8f27-5b1a9d0e4c11")

// Result is the outcome of one extraction call.
type Result struct {
	Meeting          *storage.Meeting `json:"meeting"`
	TasksCreated     int              `json:"tasksCreated"`
	AlreadyProcessed bool             `json:"alreadyProcessed"`
}

// ExtractionSweepResult is the per-session result of the unprocessed sweep.
type ExtractionSweepResult struct {
	SessionID    string `json:"sessionId"`
	TasksCreated int    `json:"tasksCreated"`
	Error        string `json:"error,omitempty"`
}

// Extractor is the single place allowed to turn a transcript into a Meeting
// and Tasks, exactly once per session. The ai_processed flag on the session
// is the idempotency guard; it is only flipped after every write succeeded.
type Extractor struct {
	sessions storage.SessionStore
	meetings storage.MeetingStore
	tasks    storage.TaskStore
	model    LanguageModel
	indexer  TranscriptIndexer
	now      func() time.Time
}

// NewExtractor creates an Extractor. indexer may be nil to disable transcript
// search indexing.
func NewExtractor(sessions storage.SessionStore, meetings storage.MeetingStore, tasks storage.TaskStore, model LanguageModel, indexer TranscriptIndexer) *Extractor {
	return &Extractor{
		sessions: sessions,
		meetings: meetings,
		tasks:    tasks,
		model:    model,
		indexer:  indexer,
		now:      time.Now,
	}
}

// Process runs extraction for one session. Calling it twice produces exactly
// one meeting and one set of tasks: the second call short-circuits on the
// ai_processed guard with zero provider calls and zero inserts.
func (e *Extractor) Process(ctx context.Context, sessionID string) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.AIProcessed {
		meeting, err := e.meetings.GetBySessionID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("session %s is marked processed but has no meeting: %w", sessionID, err)
		}
		logger.InfoContext(ctx, "session already processed", "session_id", sessionID, "meeting_id", meeting.ID)
		return &Result{Meeting: meeting, AlreadyProcessed: true}, nil
	}

	if session.Status != storage.StatusCompleted || session.Transcript == "" {
		return nil, fmt.Errorf("%w: status=%s", ErrNotReady, session.Status)
	}

	result, err := e.materialize(ctx, session)
	if err != nil {
		// Recorded as state, not thrown to a user: most callers here are
		// background invocations. The unprocessed sweep retries later.
		if recErr := e.sessions.SetProcessingError(ctx, sessionID, err.Error()); recErr != nil {
			logger.ErrorContext(ctx, "failed to record processing error", "session_id", sessionID, "error", recErr)
		}
		return nil, err
	}

	if e.indexer != nil {
		if err := e.indexer.IndexTranscript(ctx, session); err != nil {
			logger.WarnContext(ctx, "transcript indexing failed", "session_id", sessionID, "error", err)
		}
	}
	return result, nil
}

func (e *Extractor) materialize(ctx context.Context, session *storage.Session) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	projectID := session.EffectiveProjectID()

	title, err := e.model.GenerateTitle(ctx, session.Transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to generate meeting title: %w", err)
	}

	analysis, err := e.model.Analyze(ctx, session.Transcript, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze transcript: %w", err)
	}

	meeting := &storage.Meeting{
		ID:          uuid.NewSHA1(extractionNamespace, []byte("meeting:"+session.ID)).String(),
		SessionID:   session.ID,
		Title:       title,
		Summary:     analysis.Summary,
		KeyPoints:   analysis.KeyPoints,
		ActionItems: analysis.ActionItems,
	}
	if err := e.meetings.Insert(ctx, meeting); err != nil {
		return nil, err
	}
	// Re-read so a retry after a prior partial run reports the surviving row
	meeting, err = e.meetings.GetBySessionID(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload meeting: %w", err)
	}

	tasks := make([]*storage.Task, 0, len(analysis.Tasks))
	taskIDs := make([]string, 0, len(analysis.Tasks))
	for i, candidate := range analysis.Tasks {
		task := &storage.Task{
			ID:              uuid.NewSHA1(extractionNamespace, []byte(session.ID+":task:"+strconv.Itoa(i))).String(),
			ProjectID:       projectID, // the session's declared project is authoritative
			Title:           candidate.Title,
			Description:     candidate.Description,
			Status:          taskInitialStatus,
			Priority:        normalizePriority(candidate.Priority),
			DueDate:         e.dueDate(candidate.DueDate),
			SourceMeetingID: meeting.ID,
			AIGenerated:     true,
		}
		tasks = append(tasks, task)
		taskIDs = append(taskIDs, task.ID)
	}

	if err := e.tasks.InsertBatch(ctx, tasks); err != nil {
		return nil, err
	}
	if err := e.tasks.LinkToMeeting(ctx, meeting.ID, taskIDs); err != nil {
		return nil, err
	}

	// Only now, with every write confirmed, flip the idempotency guard
	if _, err := e.sessions.MarkProcessed(ctx, session.ID); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "extraction completed", "session_id", session.ID,
		"meeting_id", meeting.ID, "tasks_created", len(tasks), "project_id", projectID)
	return &Result{Meeting: meeting, TasksCreated: len(tasks)}, nil
}

// ProcessUnprocessed sweeps completed sessions that were never extracted,
// typically because their fire-and-forget trigger was dropped or a prior
// attempt failed partway.
func (e *Extractor) ProcessUnprocessed(ctx context.Context) ([]ExtractionSweepResult, error) {
	sessions, err := e.sessions.ListUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed sessions: %w", err)
	}

	results := make([]ExtractionSweepResult, 0, len(sessions))
	for _, session := range sessions {
		result := ExtractionSweepResult{SessionID: session.ID}
		processed, err := e.Process(ctx, session.ID)
		if err != nil {
			result.Error = err.Error()
		} else if !processed.AlreadyProcessed {
			result.TasksCreated = processed.TasksCreated
		}
		results = append(results, result)
	}
	return results, nil
}

// normalizePriority applies the "medium" default and rejects values outside
// the task vocabulary.
func normalizePriority(p string) string {
	switch p {
	case "low", "medium", "high":
		return p
	default:
		return defaultPriority
	}
}

// dueDate parses the model's ISO date, defaulting to seven days out so
// downstream reminder logic always has a concrete date to evaluate.
func (e *Extractor) dueDate(iso string) time.Time {
	if iso != "" {
		if t, err := time.Parse("2006-01-02", iso); err == nil {
			return t
		}
	}
	return e.now().Add(defaultDueOffset)
}

// IsNotReady reports whether err is the extraction precondition failure.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}
