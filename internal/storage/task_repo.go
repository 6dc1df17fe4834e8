package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_task_store.go -package=mocks meetscribe/internal/storage TaskStore

import (
	"context"
	"database/sql"
	"fmt"
)

// TaskStore defines the interface for task storage operations.
type TaskStore interface {
	// InsertBatch inserts the given tasks. Rows whose id already exists are
	// skipped, so a retried batch cannot duplicate previously committed rows.
	InsertBatch(ctx context.Context, tasks []*Task) error
	// LinkToMeeting records the meeting-task join rows. Idempotent.
	LinkToMeeting(ctx context.Context, meetingID string, taskIDs []string) error
	// ListByMeeting returns the tasks linked to a meeting, in insertion order.
	ListByMeeting(ctx context.Context, meetingID string) ([]*Task, error)
}

// TaskRepo provides methods for task operations.
// It implements the TaskStore interface.
type TaskRepo struct {
	db *sql.DB
}

// NewTaskRepo creates a new TaskRepo.
func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// InsertBatch inserts the tasks inside one transaction. Task ids are
// deterministic per (session, index), so ON CONFLICT DO NOTHING makes a
// partial-failure retry converge instead of duplicating rows.
func (r *TaskRepo) InsertBatch(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, task := range tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (id, project_id, title, description, status, priority, due_date, source_meeting_id, ai_generated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			task.ID, nullable(task.ProjectID), task.Title, task.Description,
			task.Status, task.Priority, task.DueDate.UTC().Format("2006-01-02 15:04:05"),
			nullable(task.SourceMeetingID), boolToInt(task.AIGenerated),
		)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task batch: %w", err)
	}
	return nil
}

// LinkToMeeting records the meeting-task join rows.
func (r *TaskRepo) LinkToMeeting(ctx context.Context, meetingID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, taskID := range taskIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meeting_tasks (meeting_id, task_id) VALUES (?, ?)
			 ON CONFLICT (meeting_id, task_id) DO NOTHING`,
			meetingID, taskID,
		)
		if err != nil {
			return fmt.Errorf("failed to link task %s: %w", taskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meeting links: %w", err)
	}
	return nil
}

// ListByMeeting returns the tasks linked to a meeting.
func (r *TaskRepo) ListByMeeting(ctx context.Context, meetingID string) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, COALESCE(t.project_id, ''), t.title, t.description, t.status, t.priority,
		        COALESCE(t.due_date, ''), COALESCE(t.source_meeting_id, ''), t.ai_generated, t.created_at
		 FROM tasks t
		 JOIN meeting_tasks mt ON mt.task_id = t.id
		 WHERE mt.meeting_id = ?
		 ORDER BY t.created_at, t.id`,
		meetingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query meeting tasks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tasks []*Task
	for rows.Next() {
		var t Task
		var dueDateStr, createdAtStr string
		var aiGenerated int

		err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status,
			&t.Priority, &dueDateStr, &t.SourceMeetingID, &aiGenerated, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		t.AIGenerated = aiGenerated != 0

		if dueDateStr != "" {
			if t.DueDate, err = parseSQLiteTime(dueDateStr); err != nil {
				return nil, fmt.Errorf("failed to parse due_date timestamp: %w", err)
			}
		}
		if t.CreatedAt, err = parseSQLiteTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
