package pipeline

import (
	"context"
	"fmt"
	"time"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
	"meetscribe/internal/stt"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 60
)

// Transcriber drives a session's transcription lifecycle against the
// speech-to-text provider: pending → processing → completed or failed,
// never backward.
type Transcriber struct {
	sessions storage.SessionStore
	provider stt.Provider
	trigger  ExtractionTrigger

	pollInterval    time.Duration
	maxPollAttempts int
}

// NewTranscriber creates a Transcriber. trigger may be nil when no extraction
// follow-up is wanted (some tests, operational scripts).
func NewTranscriber(sessions storage.SessionStore, provider stt.Provider, trigger ExtractionTrigger) *Transcriber {
	return &Transcriber{
		sessions:        sessions,
		provider:        provider,
		trigger:         trigger,
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultMaxPollAttempts,
	}
}

// Submit sends the session's audio address to the provider, records the job
// id, and moves the session to processing. Submitting a session that already
// has a job id returns that id without a second provider call.
func (t *Transcriber) Submit(ctx context.Context, sessionID, audioURL string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	session, err := t.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if session.ProviderJobID != "" {
		logger.InfoContext(ctx, "session already submitted", "session_id", sessionID, "job_id", session.ProviderJobID)
		return session.ProviderJobID, nil
	}
	if session.Status.Terminal() {
		return "", fmt.Errorf("session %s is already %s", sessionID, session.Status)
	}

	jobID, err := t.provider.Submit(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("failed to submit transcription: %w", err)
	}
	if err := t.sessions.MarkSubmitted(ctx, sessionID, jobID); err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "transcription submitted", "session_id", sessionID, "job_id", jobID)
	return jobID, nil
}

// Reconcile polls the provider and folds the result into local state. It is
// safe to call repeatedly and concurrently from anywhere holding the session
// id (the original submitter, a later request, the recovery sweep): the
// guarded transitions in the store make the first terminal write win and
// every other write a no-op.
func (t *Transcriber) Reconcile(ctx context.Context, sessionID string) (*storage.Session, error) {
	logger := contextutil.LoggerFromContext(ctx)

	session, err := t.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.Status.Terminal() {
		return session, nil
	}
	if session.ProviderJobID == "" {
		return session, ErrNeverStarted
	}

	job, err := t.provider.Poll(ctx, session.ProviderJobID)
	if err != nil {
		return session, fmt.Errorf("failed to poll provider: %w", err)
	}

	switch job.Status {
	case stt.JobCompleted:
		if job.Text == "" {
			// A completed job with no text cannot satisfy the completed
			// invariant; record it as a provider failure instead.
			if _, err := t.sessions.SetFailed(ctx, sessionID, "provider returned empty transcript"); err != nil {
				return session, err
			}
		} else {
			won, err := t.sessions.SetCompleted(ctx, sessionID, job.Text, job.Confidence)
			if err != nil {
				return session, err
			}
			if won {
				logger.InfoContext(ctx, "transcription completed", "session_id", sessionID, "confidence", job.Confidence)
				if t.trigger != nil {
					t.trigger.TriggerExtraction(sessionID)
				}
			}
		}
	case stt.JobError:
		if _, err := t.sessions.SetFailed(ctx, sessionID, job.Error); err != nil {
			return session, err
		}
		logger.WarnContext(ctx, "transcription failed", "session_id", sessionID, "provider_error", job.Error)
	default:
		// In-flight. Only write when the provider status actually differs
		// from local state, to avoid redundant row churn.
		if session.Status == storage.StatusPending {
			if err := t.sessions.MarkSubmitted(ctx, sessionID, session.ProviderJobID); err != nil {
				return session, err
			}
		}
	}

	fresh, err := t.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload session: %w", err)
	}
	return fresh, nil
}

// PollUntilDone reconciles repeatedly until the session reaches a terminal
// state, up to a bounded number of attempts. When the attempts run out the
// session is left in place for the recovery sweep and ErrStillProcessing is
// returned.
func (t *Transcriber) PollUntilDone(ctx context.Context, sessionID string) (*storage.Session, error) {
	for attempt := 0; attempt < t.maxPollAttempts; attempt++ {
		session, err := t.Reconcile(ctx, sessionID)
		if err != nil {
			return session, err
		}
		if session.Status.Terminal() {
			return session, nil
		}

		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}
	return nil, ErrStillProcessing
}
