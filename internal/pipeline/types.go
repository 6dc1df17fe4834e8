// Package pipeline owns the recording-to-task pipeline: the transcription
// state machine, the stuck-job recovery sweep, and the AI extraction stage
// that materializes meetings and tasks.
//
// Every stage here can be invoked concurrently with another instance of
// itself (a manual retry racing a scheduled sweep), so decisions are guarded
// by persisted session state, never by in-memory locks.
package pipeline

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_language_model.go -package=mocks meetscribe/internal/pipeline LanguageModel

import (
	"context"
	"errors"
	"log/slog"

	"meetscribe/internal/llm"
	"meetscribe/internal/storage"
)

var (
	// ErrNeverStarted means the session has no provider job id, so there is
	// nothing to poll. Reported by the sweep, not auto-healed.
	ErrNeverStarted = errors.New("transcription was never submitted to the provider")
	// ErrStillProcessing means bounded polling gave up before the provider
	// reached a terminal state; the recovery sweep will pick the session up.
	ErrStillProcessing = errors.New("transcription still processing")
	// ErrNotReady means extraction preconditions are not met yet.
	ErrNotReady = errors.New("session is not ready for extraction")
)

// LanguageModel is the extraction stage's view of the language-model
// provider. This interface is defined from the consumer's perspective;
// *llm.Analyzer is the production implementation.
type LanguageModel interface {
	// GenerateTitle asks the model for a short title for the transcript.
	GenerateTitle(ctx context.Context, transcript string) (string, error)
	// Analyze asks the model for a structured summary and task list.
	Analyze(ctx context.Context, transcript, projectName string) (*llm.Analysis, error)
}

// TranscriptIndexer receives completed, extracted transcripts for search
// indexing. Indexing is best-effort and never blocks the pipeline.
type TranscriptIndexer interface {
	IndexTranscript(ctx context.Context, session *storage.Session) error
}

// ExtractionTrigger requests that extraction eventually run for a session.
// The contract is "eventually invoked at least once", not the transport: the
// production trigger spawns a goroutine, a deployment with an external queue
// could enqueue instead, and tests call synchronously.
type ExtractionTrigger interface {
	TriggerExtraction(sessionID string)
}

// AsyncTrigger runs extraction on a fresh goroutine with its own context, so
// a completed poll inside a dying request still gets its follow-up started.
// Failures are logged only; the unprocessed-transcript sweep is the retry.
type AsyncTrigger struct {
	Extractor *Extractor
}

// TriggerExtraction fires extraction without blocking the caller.
func (t *AsyncTrigger) TriggerExtraction(sessionID string) {
	go func() {
		ctx := context.Background()
		if _, err := t.Extractor.Process(ctx, sessionID); err != nil {
			slog.Error("background extraction failed", "session_id", sessionID, "error", err)
		}
	}()
}
