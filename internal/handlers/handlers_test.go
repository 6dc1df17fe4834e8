package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	meethttp "meetscribe/internal/http"
	"meetscribe/internal/llm"
	"meetscribe/internal/objectstore"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/pipeline/mocks"
	"meetscribe/internal/storage"
	"meetscribe/internal/stt"
	"meetscribe/internal/upload"
)

type fakeProvider struct {
	job *stt.Job
}

func (f *fakeProvider) Submit(ctx context.Context, audioURL string) (string, error) {
	return "job-1", nil
}

func (f *fakeProvider) Poll(ctx context.Context, jobID string) (*stt.Job, error) {
	return f.job, nil
}

// noopTrigger keeps reconcile side effects synchronous in tests; extraction
// is exercised through its endpoint instead.
type noopTrigger struct{}

func (noopTrigger) TriggerExtraction(sessionID string) {}

// noopStarter keeps session creation synchronous in tests.
type noopStarter struct{}

func (noopStarter) Submit(ctx context.Context, sessionID, audioURL string) (string, error) {
	return "job-1", nil
}

func (noopStarter) PollUntilDone(ctx context.Context, sessionID string) (*storage.Session, error) {
	return nil, nil
}

type fixture struct {
	db       *sql.DB
	sessions *storage.SessionRepo
	model    *mocks.MockLanguageModel
	provider *fakeProvider
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
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

	sessions := storage.NewSessionRepo(db)
	meetings := storage.NewMeetingRepo(db)
	tasks := storage.NewTaskRepo(db)
	objects, err := objectstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("objectstore.NewFSStore() error = %v", err)
	}

	provider := &fakeProvider{job: &stt.Job{ID: "job-1", Status: stt.JobCompleted, Text: "meeting transcript", Confidence: 0.9}}
	model := mocks.NewMockLanguageModel(gomock.NewController(t))
	extractor := pipeline.NewExtractor(sessions, meetings, tasks, model, nil)
	transcriber := pipeline.NewTranscriber(sessions, provider, noopTrigger{})
	manager := upload.NewManager(sessions, objects, noopStarter{}, "http://api.test")

	router := meethttp.NewRouter(&meethttp.Deps{
		DB:            db,
		Sessions:      sessions,
		Meetings:      meetings,
		Tasks:         tasks,
		Objects:       objects,
		UploadManager: manager,
		Transcriber:   transcriber,
		Provider:      provider,
		Extractor:     extractor,
		Recovery:      pipeline.NewRecovery(sessions, transcriber, 0),
	})

	return &fixture{db: db, sessions: sessions, model: model, provider: provider, router: router}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return f.do(t, method, path, bytes.NewReader(payload), "application/json")
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, fileContent string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	part, err := writer.CreateFormFile(fileField, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.WriteString(part, fileContent); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestRecordings_CreateInline(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, map[string]string{
		"userId":    "user-1",
		"projectId": "project-1",
		"title":     "Weekly sync",
		"duration":  "180",
	}, "audio", "sync.webm", "audio bytes")

	w := f.do(t, http.MethodPost, "/api/recordings", body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success      bool             `json:"success"`
		Session      *storage.Session `json:"session"`
		RecordingURL string           `json:"recordingUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.Session == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.HasPrefix(resp.Session.StoragePath, "recordings/user-1/") {
		t.Errorf("StoragePath = %q", resp.Session.StoragePath)
	}
	if !strings.HasPrefix(resp.RecordingURL, "http://api.test/files/recordings/user-1/") {
		t.Errorf("RecordingURL = %q", resp.RecordingURL)
	}

	// The payload is immediately fetchable on the files route
	files := f.do(t, http.MethodGet, "/files/"+resp.Session.StoragePath, nil, "")
	if files.Code != http.StatusOK || files.Body.String() != "audio bytes" {
		t.Errorf("files route: status = %d, body = %q", files.Code, files.Body.String())
	}
}

func TestRecordings_CreateInline_MissingFields(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, map[string]string{"title": "No user"}, "audio", "a.webm", "x")
	w := f.do(t, http.MethodPost, "/api/recordings", body, contentType)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	// Missing file part
	w = f.do(t, http.MethodPost, "/api/recordings", strings.NewReader("not multipart"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRecordings_DirectPath(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartBody(t, map[string]string{"userId": "user-1"}, "audio", "big.webm", "large payload")
	w := f.do(t, http.MethodPost, "/api/recordings/upload", body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}

	var uploaded struct {
		FilePath string `json:"filePath"`
		FileSize int64  `json:"fileSize"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &uploaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = f.doJSON(t, http.MethodPost, "/api/recordings/create-session", map[string]any{
		"userId":   "user-1",
		"title":    "All hands",
		"filePath": uploaded.FilePath,
		"fileSize": uploaded.FileSize,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create-session status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRecordings_CreateSession_DanglingPath(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodPost, "/api/recordings/create-session", map[string]any{
		"userId":   "user-1",
		"title":    "Ghost",
		"filePath": "recordings/user-1/missing.webm",
		"fileSize": 999,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTranscribe_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.sessions.Create(ctx, &storage.Session{
		ID: "s1", UserID: "user-1", Title: "Sync", StoragePath: "recordings/user-1/s1.webm",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	w := f.doJSON(t, http.MethodPost, "/api/transcribe", map[string]string{
		"sessionId":    "s1",
		"recordingUrl": "http://api.test/files/recordings/user-1/s1.webm",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	var submitted struct {
		TranscriptID string `json:"transcriptId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if submitted.TranscriptID != "job-1" {
		t.Errorf("TranscriptID = %q", submitted.TranscriptID)
	}

	w = f.do(t, http.MethodGet, "/api/transcribe?transcriptId=job-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status status = %d", w.Code)
	}

	w = f.doJSON(t, http.MethodPut, "/api/transcribe", map[string]string{"sessionId": "s1"})
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d, body = %s", w.Code, w.Body.String())
	}
	var reconciled struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reconciled); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reconciled.Status != "completed" || reconciled.Text != "meeting transcript" {
		t.Errorf("reconciled = %+v", reconciled)
	}
}

func TestTranscribe_SessionNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodPost, "/api/transcribe", map[string]string{
		"sessionId":    "nope",
		"recordingUrl": "http://api.test/files/x.webm",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestProcessRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.sessions.Create(ctx, &storage.Session{
		ID: "s1", UserID: "user-1", ProjectID: "project-1", Title: "Sync",
		StoragePath: "recordings/user-1/s1.webm",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Not yet transcribed
	w := f.doJSON(t, http.MethodPost, "/api/process-recording", map[string]string{"sessionId": "s1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while pending", w.Code)
	}

	if err := f.sessions.MarkSubmitted(ctx, "s1", "job-1"); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}
	if _, err := f.sessions.SetCompleted(ctx, "s1", "we planned the quarter", 0.9); err != nil {
		t.Fatalf("SetCompleted() error = %v", err)
	}

	f.model.EXPECT().GenerateTitle(gomock.Any(), gomock.Any()).Return("Quarter planning", nil)
	f.model.EXPECT().Analyze(gomock.Any(), gomock.Any(), "project-1").Return(&llm.Analysis{
		Summary: "Planned the quarter.",
		Tasks:   []llm.CandidateTask{{Title: "Write OKRs"}},
	}, nil)

	w = f.doJSON(t, http.MethodPost, "/api/process-recording", map[string]string{"sessionId": "s1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var result struct {
		TasksCreated     int  `json:"tasksCreated"`
		AlreadyProcessed bool `json:"alreadyProcessed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.TasksCreated != 1 || result.AlreadyProcessed {
		t.Errorf("result = %+v", result)
	}

	// Retry is the idempotent path: no further model expectations are set
	w = f.doJSON(t, http.MethodPost, "/api/process-recording", map[string]string{"sessionId": "s1"})
	if w.Code != http.StatusOK {
		t.Fatalf("retry status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Error("retry did not report alreadyProcessed")
	}

	// The rendered meeting page is reachable
	page := f.do(t, http.MethodGet, "/meetings/s1", nil, "")
	if page.Code != http.StatusOK {
		t.Fatalf("meeting page status = %d", page.Code)
	}
	if !strings.Contains(page.Body.String(), "Quarter planning") {
		t.Error("meeting page does not contain the title")
	}
}

func TestProcessRecording_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodPost, "/api/process-recording", map[string]string{"sessionId": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.sessions.Create(ctx, &storage.Session{
		ID: "s1", UserID: "user-1", Title: "Sync", StoragePath: "recordings/user-1/s1.webm",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	w := f.do(t, http.MethodGet, "/api/sessions/s1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var session storage.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if session.ID != "s1" || session.Status != storage.StatusPending {
		t.Errorf("session = %+v", session)
	}

	w = f.do(t, http.MethodGet, "/api/sessions/missing", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestFixStuckEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.sessions.Create(ctx, &storage.Session{
		ID: "s1", UserID: "user-1", Title: "Sync", StoragePath: "recordings/user-1/s1.webm",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := f.sessions.MarkSubmitted(ctx, "s1", "job-1"); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}
	// Push the session past the (zero) grace period
	if _, err := f.db.Exec(`UPDATE sessions SET created_at = ? WHERE id = ?`,
		"2020-01-01 00:00:00", "s1"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	w := f.do(t, http.MethodPost, "/api/fix-stuck-transcriptions", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var summary struct {
		Checked int `json:"checked"`
		Fixed   int `json:"fixed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Checked != 1 || summary.Fixed != 1 {
		t.Errorf("summary = %+v", summary)
	}

	session, err := f.sessions.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if session.Status != storage.StatusCompleted {
		t.Errorf("Status = %q, want completed", session.Status)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "healthy" || health.Checks["database"] != "ok" {
		t.Errorf("health = %+v", health)
	}
}

func TestFiles_RejectsTraversal(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/files/..%2F..%2Fetc%2Fpasswd", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
