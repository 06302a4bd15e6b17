package ledger

import (
	"context"
	"time"

	"github.com/tallyd/tally/internal/models"
)

// Store is the durable progress ledger. Implementations must be safe for
// concurrent use. Every write recomputes the session running total from the
// full record set; nothing in the ledger increments a stored total.
type Store interface {
	// EnsureSession creates the session described by params when it does
	// not exist yet and returns it. An existing session is returned as
	// stored; parameters are never re-applied to it.
	EnsureSession(ctx context.Context, params SessionParams) (models.Session, error)

	// RecordStep upserts the completion record for (sessionID, stepIndex).
	// Replays and reordered retries land on the same key and the latest
	// write wins wholesale. The bool reports whether an existing record was
	// replaced.
	RecordStep(ctx context.Context, sessionID string, stepIndex int, rawScore float64) (models.StepRecord, bool, error)

	// FetchProgress returns the session and all of its step records ordered
	// by step index. It works for every session status.
	FetchProgress(ctx context.Context, sessionID string) (models.Progress, error)

	// Finalize marks an in_progress session submitted and returns its final
	// state. A submitted session yields ErrAlreadySubmitted and an
	// abandoned one ErrSessionAbandoned; neither changes stored state.
	Finalize(ctx context.Context, sessionID string) (models.Session, error)

	// Abandon marks an in_progress session abandoned. Abandoning an
	// abandoned session is a no-op; a submitted session yields
	// ErrAlreadySubmitted.
	Abandon(ctx context.Context, sessionID string) (models.Session, error)

	// AbandonStale abandons every in_progress session with no activity
	// since cutoff and returns how many sessions changed.
	AbandonStale(ctx context.Context, cutoff time.Time) (int, error)

	// ListSessions returns sessions with the given status, newest first. An
	// empty status returns all sessions.
	ListSessions(ctx context.Context, status models.SessionStatus) ([]models.Session, error)

	Close() error
}

// SessionParams describes a session to create. An empty ID gets a generated
// UUID; a zero MaxRawScore falls back to the default raw range.
type SessionParams struct {
	ID            string
	ParticipantID string
	StepCount     int
	ScoreBudget   float64
	MaxRawScore   float64
}

// Validate checks the creation invariants shared by all store
// implementations.
func (p *SessionParams) Validate() error {
	if p.ParticipantID == "" {
		return validationErrorf("participant id is required")
	}
	if p.StepCount <= 0 {
		return validationErrorf("step count must be positive, got %d", p.StepCount)
	}
	if p.ScoreBudget <= 0 {
		return validationErrorf("score budget must be positive, got %g", p.ScoreBudget)
	}
	if p.MaxRawScore < 0 {
		return validationErrorf("max raw score must not be negative, got %g", p.MaxRawScore)
	}
	return nil
}

// writeGate rejects writes against sessions in a terminal state.
func writeGate(s *models.Session) error {
	switch s.Status {
	case models.SessionSubmitted:
		return ErrAlreadySubmitted
	case models.SessionAbandoned:
		return ErrSessionAbandoned
	}
	return nil
}

// checkStepBounds validates a step write against the ranges the session
// declared at creation. Raw scores above the declared maximum are rejected
// here; that is what keeps the sum of contributions bounded by the budget
// without clamping totals.
func checkStepBounds(s *models.Session, stepIndex int, rawScore float64) error {
	if stepIndex < 0 || stepIndex >= s.StepCount {
		return &OutOfRangeError{Field: "step_index", Value: float64(stepIndex), Max: float64(s.StepCount - 1)}
	}
	if rawScore < 0 || rawScore > s.MaxRawScore {
		return &OutOfRangeError{Field: "raw_score", Value: rawScore, Max: s.MaxRawScore}
	}
	return nil
}
