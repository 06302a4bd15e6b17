package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tallyd/tally/internal/eventlog"
	"github.com/tallyd/tally/internal/models"
)

// Driver walks a scripted session against the service, resuming from
// whatever the server already has.
type Driver struct {
	client    *Client
	events    eventlog.Logger
	logger    *slog.Logger
	stepDelay time.Duration
}

// DriverOptions configures a Driver.
type DriverOptions struct {
	// Events receives the submission timeline. Defaults to NopLogger.
	Events eventlog.Logger
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// StepDelay is an optional pause between step submissions.
	StepDelay time.Duration
}

// RunResult summarizes one driver run.
type RunResult struct {
	Session models.Session
	// Resumed is true when the server already held records for the session.
	Resumed bool
	// StartStep is the index this run started submitting from.
	StartStep int
	// Submitted counts the steps delivered by this run alone.
	Submitted int
	Finalized bool
}

// NewDriver creates a Driver submitting through c.
func NewDriver(c *Client, opts DriverOptions) *Driver {
	if opts.Events == nil {
		opts.Events = eventlog.NopLogger{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{
		client:    c,
		events:    opts.Events,
		logger:    opts.Logger,
		stepDelay: opts.StepDelay,
	}
}

// Run ensures the scripted session exists, asks the server where it
// stands, submits the remaining steps in order and finalizes. On a
// delivery failure it stops advancing and returns: the script file holds
// the pending state, so the next run picks up at the same step.
func (d *Driver) Run(ctx context.Context, script *Script) (RunResult, error) {
	sess, err := d.client.EnsureSession(ctx, script.Spec())
	if err != nil {
		return RunResult{}, err
	}

	state, err := NewReconciler(d.client, d.logger).Resume(ctx, sess.ID)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Session: state.Session, Resumed: state.Recorded > 0, StartStep: state.NextStep}

	switch state.Session.Status {
	case models.SessionSubmitted:
		d.logger.Info("session already submitted", "session", sess.ID, "total", state.RunningTotal)
		result.Finalized = true
		return result, nil
	case models.SessionAbandoned:
		return result, fmt.Errorf("session %s is abandoned and cannot accept submissions", sess.ID)
	}

	if result.Resumed {
		d.events.Log(eventlog.NewEvent(eventlog.EventSessionResumed, //nolint:errcheck
			eventlog.SessionResumedData(sess.ID, state.NextStep, state.Recorded, state.RunningTotal)))
		d.logger.Info("resuming session",
			"session", sess.ID, "next_step", state.NextStep, "recorded", state.Recorded)
	} else {
		d.events.Log(eventlog.NewEvent(eventlog.EventSessionStart, //nolint:errcheck
			eventlog.SessionStartData(sess.ID, sess.ParticipantID, sess.StepCount, sess.ScoreBudget)))
	}

	for idx := state.NextStep; idx < len(script.Steps); idx++ {
		if d.stepDelay > 0 && idx > state.NextStep {
			select {
			case <-time.After(d.stepDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}

		rec, err := d.client.SubmitStep(ctx, sess.ID, idx, script.Steps[idx])
		if err != nil {
			d.logDeliveryFailure(idx, err)
			return result, err
		}

		result.Submitted++
		d.events.Log(eventlog.NewEvent(eventlog.EventStepSubmitted, //nolint:errcheck
			eventlog.StepSubmittedData(idx, rec.RawScore, rec.Contribution)))
		d.logger.Debug("step submitted",
			"session", sess.ID, "step", idx, "contribution", rec.Contribution)
	}

	final, err := d.client.FinalSubmit(ctx, sess.ID)
	if err != nil {
		d.logDeliveryFailure(-1, err)
		return result, err
	}

	result.Session = final
	result.Finalized = true
	d.events.Log(eventlog.NewEvent(eventlog.EventFinalSubmit, //nolint:errcheck
		eventlog.FinalSubmitData(final.ID, final.RunningTotal)))
	d.events.Log(eventlog.NewEvent(eventlog.EventSessionComplete, //nolint:errcheck
		eventlog.SessionCompleteData(final.ID, final.StepCount, final.RunningTotal)))
	d.logger.Info("session complete", "session", final.ID, "total", final.RunningTotal)
	return result, nil
}

// RecordOne submits a single step outside a scripted run, for manual
// corrections. It reports whether the write replaced an existing record.
func (d *Driver) RecordOne(ctx context.Context, sessionID string, stepIndex int, rawScore float64) (models.StepRecord, bool, error) {
	prog, err := d.client.FetchProgress(ctx, sessionID)
	if err != nil {
		return models.StepRecord{}, false, err
	}
	_, replay := prog.Record(stepIndex)

	rec, err := d.client.SubmitStep(ctx, sessionID, stepIndex, rawScore)
	if err != nil {
		d.logDeliveryFailure(stepIndex, err)
		return models.StepRecord{}, false, err
	}

	evType := eventlog.EventStepSubmitted
	if replay {
		evType = eventlog.EventStepReplayed
	}
	d.events.Log(eventlog.NewEvent(evType, //nolint:errcheck
		eventlog.StepSubmittedData(stepIndex, rec.RawScore, rec.Contribution)))
	return rec, replay, nil
}

func (d *Driver) logDeliveryFailure(stepIndex int, err error) {
	var delivery *DeliveryFailedError
	if !errors.As(err, &delivery) {
		return
	}
	d.events.Log(eventlog.NewEvent(eventlog.EventDeliveryFailed, //nolint:errcheck
		eventlog.DeliveryFailedData(stepIndex, delivery.Attempts, delivery.Err.Error())))
	d.logger.Error("delivery failed, keeping pending state",
		"op", delivery.Op, "session", delivery.SessionID, "step", stepIndex, "attempts", delivery.Attempts)
}
