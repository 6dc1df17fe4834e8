package pipeline

import (
	"context"
	"fmt"
	"time"

	"meetscribe/internal/contextutil"
	"meetscribe/internal/storage"
)

// SweepOutcome classifies what the recovery sweep did with one session.
type SweepOutcome string

const (
	OutcomeFixed        SweepOutcome = "fixed"
	OutcomeFailed       SweepOutcome = "failed"
	OutcomeStillPending SweepOutcome = "still-pending"
	OutcomeNeverStarted SweepOutcome = "never-started"
)

// SweepResult is the per-session result of a recovery sweep.
type SweepResult struct {
	SessionID string       `json:"sessionId"`
	Outcome   SweepOutcome `json:"outcome"`
	Detail    string       `json:"detail,omitempty"`
}

// SweepSummary aggregates one sweep run.
type SweepSummary struct {
	Checked      int           `json:"checked"`
	Fixed        int           `json:"fixed"`
	Failed       int           `json:"failed"`
	StillPending int           `json:"stillPending"`
	NeverStarted int           `json:"neverStarted"`
	Results      []SweepResult `json:"results"`
}

// Recovery finds sessions stuck in a non-terminal transcription state past
// the grace period and forces a state transition by re-polling the provider.
// It guarantees liveness when the submitting process died before its polling
// finished or the fire-and-forget follow-up was dropped.
type Recovery struct {
	sessions    storage.SessionStore
	transcriber *Transcriber
	grace       time.Duration
}

// NewRecovery creates a Recovery sweep with the given grace period.
func NewRecovery(sessions storage.SessionStore, transcriber *Transcriber, grace time.Duration) *Recovery {
	return &Recovery{
		sessions:    sessions,
		transcriber: transcriber,
		grace:       grace,
	}
}

// FixStuck runs one sweep. Safe to run repeatedly and concurrently with
// in-flight normal polls: both paths converge on the same guarded store
// transitions, so whichever writes first wins and the other is a no-op.
func (r *Recovery) FixStuck(ctx context.Context) (*SweepSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	stuck, err := r.sessions.ListStuck(ctx, time.Now().Add(-r.grace))
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck sessions: %w", err)
	}

	summary := &SweepSummary{Checked: len(stuck)}
	for _, session := range stuck {
		result := r.recoverOne(ctx, session)
		summary.Results = append(summary.Results, result)
		switch result.Outcome {
		case OutcomeFixed:
			summary.Fixed++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeStillPending:
			summary.StillPending++
		case OutcomeNeverStarted:
			summary.NeverStarted++
		}
	}

	if summary.Checked > 0 {
		logger.InfoContext(ctx, "stuck transcription sweep finished",
			"checked", summary.Checked, "fixed", summary.Fixed, "failed", summary.Failed,
			"still_pending", summary.StillPending, "never_started", summary.NeverStarted)
	}
	return summary, nil
}

func (r *Recovery) recoverOne(ctx context.Context, session *storage.Session) SweepResult {
	logger := contextutil.LoggerFromContext(ctx)

	// No job id means there is nothing to poll. Reported for operator
	// attention rather than auto-resubmitted; see DESIGN.md.
	if session.ProviderJobID == "" {
		logger.WarnContext(ctx, "stuck session was never submitted", "session_id", session.ID)
		return SweepResult{SessionID: session.ID, Outcome: OutcomeNeverStarted,
			Detail: "no provider job id recorded"}
	}

	fresh, err := r.transcriber.Reconcile(ctx, session.ID)
	if err != nil {
		logger.WarnContext(ctx, "stuck session reconcile failed", "session_id", session.ID, "error", err)
		return SweepResult{SessionID: session.ID, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	switch fresh.Status {
	case storage.StatusCompleted:
		return SweepResult{SessionID: session.ID, Outcome: OutcomeFixed}
	case storage.StatusFailed:
		return SweepResult{SessionID: session.ID, Outcome: OutcomeFailed, Detail: fresh.LastError}
	default:
		return SweepResult{SessionID: session.ID, Outcome: OutcomeStillPending}
	}
}
