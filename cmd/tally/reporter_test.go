package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/tallyd/tally/internal/client"
	"github.com/tallyd/tally/internal/models"
)

// disableColor makes rendered output byte-stable regardless of the
// terminal the tests run on.
func disableColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func progressFixture() models.Progress {
	recorded := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return models.Progress{
		Session: models.Session{
			ID:            "s-42",
			ParticipantID: "p-9",
			StepCount:     4,
			ScoreBudget:   100,
			MaxRawScore:   100,
			Status:        models.SessionInProgress,
			RunningTotal:  37.5,
		},
		Records: []models.StepRecord{
			{SessionID: "s-42", StepIndex: 0, RawScore: 100, Contribution: 25, RecordedAt: recorded},
			{SessionID: "s-42", StepIndex: 1, RawScore: 50, Contribution: 12.5, RecordedAt: recorded},
		},
	}
}

func TestPrintProgress(t *testing.T) {
	disableColor(t)

	var buf bytes.Buffer
	printProgress(&buf, progressFixture())
	out := buf.String()

	assert.Contains(t, out, "Session    s-42 (participant p-9)")
	assert.Contains(t, out, "Status     in_progress")
	assert.Contains(t, out, "Total      37.50 of 100.00 budget")
	assert.Contains(t, out, "Steps      2 of 4 recorded")
	assert.Contains(t, out, "Next       step 2")
	assert.Contains(t, out, "Recorded At")
	assert.Contains(t, out, "2026-03-14 09:30:00")
	assert.Contains(t, out, "12.50")
}

func TestPrintProgressSubmitted(t *testing.T) {
	disableColor(t)

	prog := progressFixture()
	submitted := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	prog.Session.Status = models.SessionSubmitted
	prog.Session.SubmittedAt = &submitted

	var buf bytes.Buffer
	printProgress(&buf, prog)
	out := buf.String()

	assert.Contains(t, out, "Status     submitted")
	assert.Contains(t, out, "Submitted  2026-03-14 10:00:00")
	assert.NotContains(t, out, "Next")
}

func TestPrintProgressAllRecordedShowsFinalHint(t *testing.T) {
	disableColor(t)

	prog := progressFixture()
	prog.Records = append(prog.Records,
		models.StepRecord{SessionID: "s-42", StepIndex: 2, RawScore: 10, Contribution: 2.5},
		models.StepRecord{SessionID: "s-42", StepIndex: 3, RawScore: 10, Contribution: 2.5},
	)

	var buf bytes.Buffer
	printProgress(&buf, prog)

	assert.Contains(t, buf.String(), "ready for final submit")
}

func TestPrintProgressEmpty(t *testing.T) {
	disableColor(t)

	prog := progressFixture()
	prog.Records = nil

	var buf bytes.Buffer
	printProgress(&buf, prog)

	assert.Contains(t, buf.String(), "No steps recorded yet.")
	assert.NotContains(t, buf.String(), "Recorded At")
}

func TestPrintRunSummaryFresh(t *testing.T) {
	disableColor(t)

	var buf bytes.Buffer
	printRunSummary(&buf, client.RunResult{
		Session: models.Session{
			ID:           "s-1",
			Status:       models.SessionSubmitted,
			ScoreBudget:  30,
			RunningTotal: 22.5,
		},
		Submitted: 3,
		Finalized: true,
	}, nil)
	out := buf.String()

	assert.Contains(t, out, "Session s-1: submitted 3 step(s).")
	assert.Contains(t, out, "Session s-1 submitted with total 22.50 of 30.00.")
}

func TestPrintRunSummaryResumed(t *testing.T) {
	disableColor(t)

	var buf bytes.Buffer
	printRunSummary(&buf, client.RunResult{
		Session:   models.Session{ID: "s-1", Status: models.SessionSubmitted, ScoreBudget: 30, RunningTotal: 24},
		Resumed:   true,
		StartStep: 1,
		Submitted: 2,
		Finalized: true,
	}, nil)

	assert.Contains(t, buf.String(), "Resumed session s-1 at step 1, submitted 2 step(s) this run.")
}

func TestPrintRunSummaryDeliveryFailure(t *testing.T) {
	disableColor(t)

	runErr := &client.DeliveryFailedError{
		Op:        "submit step",
		SessionID: "s-1",
		StepIndex: 3,
		Attempts:  4,
		Err:       errors.New("connection refused"),
	}

	var buf bytes.Buffer
	printRunSummary(&buf, client.RunResult{Submitted: 3}, runErr)
	out := buf.String()

	assert.Contains(t, out, "Delivery failed at step 3 after 4 attempts")
	assert.Contains(t, out, "3 step(s) were recorded before the failure.")
	assert.Contains(t, out, "Run the same script again to resume")
}

func TestPrintRunSummarySessionScopedFailure(t *testing.T) {
	disableColor(t)

	runErr := &client.DeliveryFailedError{
		Op:        "final submit",
		SessionID: "s-1",
		StepIndex: -1,
		Attempts:  4,
		Err:       errors.New("connection refused"),
	}

	var buf bytes.Buffer
	printRunSummary(&buf, client.RunResult{Submitted: 0}, runErr)
	out := buf.String()

	assert.Contains(t, out, "Delivery failed after 4 attempts (final submit).")
	assert.NotContains(t, out, "recorded before the failure")
}

func TestPrintRunSummaryOtherErrorPrintsNothing(t *testing.T) {
	disableColor(t)

	var buf bytes.Buffer
	printRunSummary(&buf, client.RunResult{}, errors.New("script is invalid"))

	assert.Empty(t, buf.String())
}

func TestPrintStepRecord(t *testing.T) {
	disableColor(t)

	rec := models.StepRecord{SessionID: "s-1", StepIndex: 2, RawScore: 80, Contribution: 8}

	var buf bytes.Buffer
	printStepRecord(&buf, rec, false)
	assert.Contains(t, buf.String(), "Recorded step 2 of session s-1: raw 80.00, contribution 8.00")

	buf.Reset()
	printStepRecord(&buf, rec, true)
	assert.Contains(t, buf.String(), "Replaced step 2")
	assert.Contains(t, buf.String(), "running total recomputed")
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abcdef", padRight("abcdef", 5))
	// Wide runes count by display width, not byte or rune length.
	assert.Equal(t, "日本", padRight("日本", 4))
	assert.Equal(t, "日本 ", padRight("日本", 5))
}
