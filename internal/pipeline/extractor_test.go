package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"meetscribe/internal/llm"
	"meetscribe/internal/pipeline/mocks"
	"meetscribe/internal/storage"
)

type extractorFixture struct {
	db        *sql.DB
	sessions  *storage.SessionRepo
	meetings  *storage.MeetingRepo
	tasks     *storage.TaskRepo
	model     *mocks.MockLanguageModel
	extractor *Extractor
}

func newExtractorFixture(t *testing.T) *extractorFixture {
	t.Helper()
	db, sessions := newPipelineDB(t)
	ctrl := gomock.NewController(t)
	model := mocks.NewMockLanguageModel(ctrl)
	meetings := storage.NewMeetingRepo(db)
	tasks := storage.NewTaskRepo(db)
	return &extractorFixture{
		db:        db,
		sessions:  sessions,
		meetings:  meetings,
		tasks:     tasks,
		model:     model,
		extractor: NewExtractor(sessions, meetings, tasks, model, nil),
	}
}

func (f *extractorFixture) completedSession(t *testing.T, id, transcript string) {
	t.Helper()
	ctx := context.Background()
	createSession(t, f.sessions, id)
	if err := f.sessions.MarkSubmitted(ctx, id, "job-"+id); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}
	if _, err := f.sessions.SetCompleted(ctx, id, transcript, 0.9); err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}
}

func TestExtractor_Process_IsIdempotent(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()
	f.completedSession(t, "s1", "we agreed to ship the beta friday")

	// Exactly one model round-trip no matter how many times Process runs
	f.model.EXPECT().GenerateTitle(gomock.Any(), "we agreed to ship the beta friday").Return("Beta planning", nil).Times(1)
	f.model.EXPECT().Analyze(gomock.Any(), "we agreed to ship the beta friday", "project-1").Return(&llm.Analysis{
		Summary:     "Planned the beta release.",
		KeyPoints:   []string{"beta ships friday"},
		ActionItems: []string{"cut the release branch"},
		Tasks: []llm.CandidateTask{
			{Title: "Cut release branch", Priority: "high", DueDate: "2026-09-05"},
		},
	}, nil).Times(1)

	first, err := f.extractor.Process(ctx, "s1")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if first.AlreadyProcessed || first.TasksCreated != 1 {
		t.Errorf("first = %+v, want fresh result with 1 task", first)
	}

	second, err := f.extractor.Process(ctx, "s1")
	if err != nil {
		t.Fatalf("Process() second error = %v", err)
	}
	if !second.AlreadyProcessed {
		t.Error("second call did not short-circuit on the processed guard")
	}
	if second.Meeting.ID != first.Meeting.ID {
		t.Errorf("second meeting %s != first %s", second.Meeting.ID, first.Meeting.ID)
	}

	tasks, err := f.tasks.ListByMeeting(ctx, first.Meeting.ID)
	if err != nil {
		t.Fatalf("ListByMeeting() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("len(tasks) = %d, want 1", len(tasks))
	}
}

func TestExtractor_Process_ProjectPropagation(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()

	// Project recorded only in metadata, not in the column
	err := f.sessions.Create(ctx, &storage.Session{
		ID:          "s2",
		UserID:      "user-1",
		Title:       "Sync",
		StoragePath: "recordings/user-1/s2.webm",
		Metadata:    `{"projectId":"project-9","device":"web"}`,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := f.sessions.MarkSubmitted(ctx, "s2", "job-s2"); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}
	if _, err := f.sessions.SetCompleted(ctx, "s2", "discussed roadmap", 0.8); err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}

	f.model.EXPECT().GenerateTitle(gomock.Any(), gomock.Any()).Return("Roadmap sync", nil)
	f.model.EXPECT().Analyze(gomock.Any(), gomock.Any(), "project-9").Return(&llm.Analysis{
		Summary: "Roadmap discussion.",
		Tasks: []llm.CandidateTask{
			{Title: "Draft roadmap doc"},
			{Title: "Schedule follow-up"},
		},
	}, nil)

	result, err := f.extractor.Process(ctx, "s2")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	tasks, err := f.tasks.ListByMeeting(ctx, result.Meeting.ID)
	if err != nil {
		t.Fatalf("ListByMeeting() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.ProjectID != "project-9" {
			t.Errorf("task %s ProjectID = %q, want project-9", task.ID, task.ProjectID)
		}
		if !task.AIGenerated {
			t.Errorf("task %s not marked ai-generated", task.ID)
		}
	}
}

func TestExtractor_Process_TaskDefaults(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()
	f.completedSession(t, "s3", "short call")

	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	f.extractor.now = func() time.Time { return fixed }

	f.model.EXPECT().GenerateTitle(gomock.Any(), gomock.Any()).Return("Short call", nil)
	f.model.EXPECT().Analyze(gomock.Any(), gomock.Any(), gomock.Any()).Return(&llm.Analysis{
		Summary: "Quick check-in.",
		Tasks: []llm.CandidateTask{
			{Title: "No metadata at all"},
			{Title: "Bad values", Priority: "urgent!!", DueDate: "next tuesday"},
			{Title: "Explicit values", Priority: "low", DueDate: "2026-10-01"},
		},
	}, nil)

	result, err := f.extractor.Process(ctx, "s3")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	tasks, err := f.tasks.ListByMeeting(ctx, result.Meeting.ID)
	if err != nil {
		t.Fatalf("ListByMeeting() error = %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(tasks))
	}

	byTitle := make(map[string]*storage.Task, len(tasks))
	for _, task := range tasks {
		byTitle[task.Title] = task
	}

	wantDefault := fixed.Add(7 * 24 * time.Hour)
	for _, title := range []string{"No metadata at all", "Bad values"} {
		task := byTitle[title]
		if task.Priority != "medium" {
			t.Errorf("%s: Priority = %q, want medium", title, task.Priority)
		}
		if !task.DueDate.Equal(wantDefault) {
			t.Errorf("%s: DueDate = %v, want %v", title, task.DueDate, wantDefault)
		}
	}
	explicit := byTitle["Explicit values"]
	if explicit.Priority != "low" {
		t.Errorf("explicit Priority = %q, want low", explicit.Priority)
	}
	if got := explicit.DueDate.Format("2006-01-02"); got != "2026-10-01" {
		t.Errorf("explicit DueDate = %s, want 2026-10-01", got)
	}
}

func TestExtractor_Process_NotReady(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()

	// Still pending: no model calls may happen
	createSession(t, f.sessions, "s4")

	_, err := f.extractor.Process(ctx, "s4")
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Process() error = %v, want ErrNotReady", err)
	}
}

func TestExtractor_Process_RecordsFailureAndRetries(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()
	f.completedSession(t, "s5", "transcript text")

	f.model.EXPECT().GenerateTitle(gomock.Any(), gomock.Any()).Return("", errors.New("model overloaded"))

	if _, err := f.extractor.Process(ctx, "s5"); err == nil {
		t.Fatal("Process() succeeded, want error")
	}

	session, err := f.sessions.GetByID(ctx, "s5")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if session.AIProcessed {
		t.Error("ai_processed flipped despite the failure")
	}
	if session.ProcessingError == "" {
		t.Error("processing error was not recorded")
	}

	// The retry path starts clean and succeeds
	f.model.EXPECT().GenerateTitle(gomock.Any(), gomock.Any()).Return("Recovered", nil)
	f.model.EXPECT().Analyze(gomock.Any(), gomock.Any(), gomock.Any()).Return(&llm.Analysis{Summary: "ok"}, nil)

	result, err := f.extractor.Process(ctx, "s5")
	if err != nil {
		t.Fatalf("Process() retry error = %v", err)
	}
	if result.AlreadyProcessed {
		t.Error("retry reported already-processed")
	}

	session, _ = f.sessions.GetByID(ctx, "s5")
	if !session.AIProcessed {
		t.Error("ai_processed not set after successful retry")
	}
}

func TestExtractor_ProcessUnprocessed(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()

	f.completedSession(t, "s6", "first transcript")
	f.completedSession(t, "s7", "second transcript")

	f.model.EXPECT().GenerateTitle(gomock.Any(), gomock.Any()).Return("Title", nil).Times(2)
	f.model.EXPECT().Analyze(gomock.Any(), gomock.Any(), gomock.Any()).Return(&llm.Analysis{Summary: "notes"}, nil).Times(2)

	results, err := f.extractor.ProcessUnprocessed(ctx)
	if err != nil {
		t.Fatalf("ProcessUnprocessed() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	// Second sweep finds nothing left to do
	results, err = f.extractor.ProcessUnprocessed(ctx)
	if err != nil {
		t.Fatalf("ProcessUnprocessed() second error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("second sweep returned %d sessions, want 0", len(results))
	}
}
