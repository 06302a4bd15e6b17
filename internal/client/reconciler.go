package client

import (
	"context"
	"log/slog"

	"github.com/tallyd/tally/internal/models"
)

// ResumeState is where a recovering client should pick up.
type ResumeState struct {
	// Fresh is true when the server has never seen the session.
	Fresh bool
	// Session is the stored session; zero when Fresh.
	Session models.Session
	// NextStep is the first step index to work on: one past the highest
	// recorded index, or 0 for an untouched session.
	NextStep int
	// Recorded is how many steps already have records.
	Recorded int
	// RunningTotal mirrors the server-side total.
	RunningTotal float64
	// Complete is true when every step has a record.
	Complete bool
}

// Reconciler derives resume points from server-side progress. It only
// reads: a crashed client re-derives its position from the ledger instead
// of trusting whatever local state survived.
type Reconciler struct {
	client *Client
	logger *slog.Logger
}

// NewReconciler creates a Reconciler on top of c.
func NewReconciler(c *Client, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{client: c, logger: logger}
}

// Resume fetches progress and computes the continuation point. A session
// unknown to the server resumes fresh at step 0.
func (r *Reconciler) Resume(ctx context.Context, sessionID string) (ResumeState, error) {
	prog, err := r.client.FetchProgress(ctx, sessionID)
	if err != nil {
		if IsNotFound(err) {
			r.logger.Debug("session unknown to server, starting fresh", "session", sessionID)
			return ResumeState{Fresh: true}, nil
		}
		return ResumeState{}, err
	}

	state := ResumeState{
		Session:      prog.Session,
		NextStep:     prog.NextStepIndex(),
		Recorded:     len(prog.Records),
		RunningTotal: prog.Session.RunningTotal,
		Complete:     prog.Complete(),
	}
	r.logger.Debug("resume state",
		"session", sessionID,
		"next_step", state.NextStep,
		"recorded", state.Recorded,
		"running_total", state.RunningTotal)
	return state, nil
}
