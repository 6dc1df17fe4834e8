package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"meetscribe/internal/storage"
	"meetscribe/internal/stt"
)

type fakeProvider struct {
	submitID    string
	submitErr   error
	submitCalls int

	job       *stt.Job
	pollErr   error
	pollCalls int
}

func (f *fakeProvider) Submit(ctx context.Context, audioURL string) (string, error) {
	f.submitCalls++
	return f.submitID, f.submitErr
}

func (f *fakeProvider) Poll(ctx context.Context, jobID string) (*stt.Job, error) {
	f.pollCalls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.job, nil
}

type fakeTrigger struct {
	sessionIDs []string
}

func (f *fakeTrigger) TriggerExtraction(sessionID string) {
	f.sessionIDs = append(f.sessionIDs, sessionID)
}

func newPipelineDB(t *testing.T) (*sql.DB, *storage.SessionRepo) {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}
	return db, storage.NewSessionRepo(db)
}

func createSession(t *testing.T, sessions *storage.SessionRepo, id string) {
	t.Helper()
	err := sessions.Create(context.Background(), &storage.Session{
		ID:          id,
		UserID:      "user-1",
		ProjectID:   "project-1",
		Title:       "Standup",
		StoragePath: "recordings/user-1/" + id + ".webm",
		FileSize:    2048,
		Duration:    30,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestTranscriber_Submit(t *testing.T) {
	_, sessions := newPipelineDB(t)
	provider := &fakeProvider{submitID: "job-1"}
	transcriber := NewTranscriber(sessions, provider, nil)
	ctx := context.Background()

	createSession(t, sessions, "s1")

	jobID, err := transcriber.Submit(ctx, "s1", "http://example.com/recordings/user-1/s1.webm")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("Submit() = %q, want job-1", jobID)
	}

	session, err := sessions.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if session.Status != storage.StatusProcessing {
		t.Errorf("Status = %q, want processing", session.Status)
	}

	// Resubmitting must not hit the provider again
	jobID, err = transcriber.Submit(ctx, "s1", "http://example.com/recordings/user-1/s1.webm")
	if err != nil {
		t.Fatalf("Submit() retry error = %v", err)
	}
	if jobID != "job-1" || provider.submitCalls != 1 {
		t.Errorf("retry: jobID = %q, submitCalls = %d; want job-1 and 1", jobID, provider.submitCalls)
	}
}

func TestTranscriber_Reconcile(t *testing.T) {
	tests := []struct {
		name        string
		job         *stt.Job
		wantStatus  storage.TranscriptionStatus
		wantText    string
		wantTrigger int
	}{
		{
			name:        "provider completed",
			job:         &stt.Job{ID: "job-1", Status: stt.JobCompleted, Text: "hello world", Confidence: 0.95},
			wantStatus:  storage.StatusCompleted,
			wantText:    "hello world",
			wantTrigger: 1,
		},
		{
			name:       "provider error",
			job:        &stt.Job{ID: "job-1", Status: stt.JobError, Error: "audio unreadable"},
			wantStatus: storage.StatusFailed,
		},
		{
			name:       "still in flight",
			job:        &stt.Job{ID: "job-1", Status: stt.JobProcessing},
			wantStatus: storage.StatusProcessing,
		},
		{
			name:       "completed with empty text becomes failed",
			job:        &stt.Job{ID: "job-1", Status: stt.JobCompleted, Text: ""},
			wantStatus: storage.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sessions := newPipelineDB(t)
			provider := &fakeProvider{submitID: "job-1", job: tt.job}
			trigger := &fakeTrigger{}
			transcriber := NewTranscriber(sessions, provider, trigger)
			ctx := context.Background()

			createSession(t, sessions, "s1")
			if _, err := transcriber.Submit(ctx, "s1", "url"); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}

			session, err := transcriber.Reconcile(ctx, "s1")
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if session.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", session.Status, tt.wantStatus)
			}
			if session.Transcript != tt.wantText {
				t.Errorf("Transcript = %q, want %q", session.Transcript, tt.wantText)
			}
			if len(trigger.sessionIDs) != tt.wantTrigger {
				t.Errorf("extraction triggered %d times, want %d", len(trigger.sessionIDs), tt.wantTrigger)
			}
		})
	}
}

func TestTranscriber_Reconcile_NeverStarted(t *testing.T) {
	_, sessions := newPipelineDB(t)
	transcriber := NewTranscriber(sessions, &fakeProvider{}, nil)

	createSession(t, sessions, "s1")

	if _, err := transcriber.Reconcile(context.Background(), "s1"); !errors.Is(err, ErrNeverStarted) {
		t.Errorf("Reconcile() error = %v, want ErrNeverStarted", err)
	}
}

func TestTranscriber_Reconcile_TerminalIsStable(t *testing.T) {
	_, sessions := newPipelineDB(t)
	provider := &fakeProvider{submitID: "job-1", job: &stt.Job{ID: "job-1", Status: stt.JobCompleted, Text: "done", Confidence: 0.9}}
	trigger := &fakeTrigger{}
	transcriber := NewTranscriber(sessions, provider, trigger)
	ctx := context.Background()

	createSession(t, sessions, "s1")
	if _, err := transcriber.Submit(ctx, "s1", "url"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := transcriber.Reconcile(ctx, "s1"); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// A later reconcile (racing sweep) must not poll again or re-trigger
	provider.job = &stt.Job{ID: "job-1", Status: stt.JobError, Error: "late error"}
	session, err := transcriber.Reconcile(ctx, "s1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if session.Status != storage.StatusCompleted || session.Transcript != "done" {
		t.Errorf("session regressed to %q", session.Status)
	}
	if provider.pollCalls != 1 {
		t.Errorf("pollCalls = %d, want 1 (terminal sessions are not re-polled)", provider.pollCalls)
	}
	if len(trigger.sessionIDs) != 1 {
		t.Errorf("extraction triggered %d times, want exactly 1", len(trigger.sessionIDs))
	}
}

func TestTranscriber_PollUntilDone_Bounded(t *testing.T) {
	_, sessions := newPipelineDB(t)
	provider := &fakeProvider{submitID: "job-1", job: &stt.Job{ID: "job-1", Status: stt.JobProcessing}}
	transcriber := NewTranscriber(sessions, provider, nil)
	transcriber.pollInterval = time.Millisecond
	transcriber.maxPollAttempts = 3
	ctx := context.Background()

	createSession(t, sessions, "s1")
	if _, err := transcriber.Submit(ctx, "s1", "url"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := transcriber.PollUntilDone(ctx, "s1"); !errors.Is(err, ErrStillProcessing) {
		t.Errorf("PollUntilDone() error = %v, want ErrStillProcessing", err)
	}
	if provider.pollCalls != 3 {
		t.Errorf("pollCalls = %d, want the bounded 3", provider.pollCalls)
	}

	// The session stays in processing for the recovery sweep
	session, err := sessions.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if session.Status != storage.StatusProcessing {
		t.Errorf("Status = %q, want processing", session.Status)
	}
}
