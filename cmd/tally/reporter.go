package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/tallyd/tally/internal/client"
	"github.com/tallyd/tally/internal/models"
)

// Column widths for the progress table.
const (
	colStep     = 6
	colRaw      = 10
	colContrib  = 14
	colRecorded = 19
)

// printProgress renders a session header followed by the per-step table.
func printProgress(w io.Writer, prog models.Progress) {
	s := prog.Session

	fmt.Fprintf(w, "Session    %s (participant %s)\n", s.ID, s.ParticipantID)
	fmt.Fprintf(w, "Status     %s\n", statusLabel(s.Status))
	fmt.Fprintf(w, "Total      %.2f of %.2f budget\n", s.RunningTotal, s.ScoreBudget)
	fmt.Fprintf(w, "Steps      %d of %d recorded\n", len(prog.Records), s.StepCount)
	if s.Status == models.SessionInProgress {
		if prog.Complete() {
			fmt.Fprintln(w, "Next       ready for final submit")
		} else {
			fmt.Fprintf(w, "Next       step %d\n", prog.NextStepIndex())
		}
	}
	if s.SubmittedAt != nil {
		fmt.Fprintf(w, "Submitted  %s\n", s.SubmittedAt.Format("2006-01-02 15:04:05"))
	}

	if len(prog.Records) == 0 {
		fmt.Fprintln(w, "\nNo steps recorded yet.")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%s%s%s\n",
		padRight("Step", colStep),
		padRight("Raw", colRaw),
		padRight("Contribution", colContrib),
		"Recorded At")
	fmt.Fprintln(w, strings.Repeat("─", colStep+colRaw+colContrib+colRecorded))
	for _, rec := range prog.Records {
		fmt.Fprintf(w, "%s%s%s%s\n",
			padRight(fmt.Sprintf("%d", rec.StepIndex), colStep),
			padRight(fmt.Sprintf("%.2f", rec.RawScore), colRaw),
			padRight(fmt.Sprintf("%.2f", rec.Contribution), colContrib),
			rec.RecordedAt.Format("2006-01-02 15:04:05"))
	}
}

// printRunSummary reports what a driver run accomplished. Delivery
// failures get a resume hint; other errors are left to the caller.
func printRunSummary(w io.Writer, result client.RunResult, runErr error) {
	if runErr != nil {
		var delivery *client.DeliveryFailedError
		if !errors.As(runErr, &delivery) {
			return
		}
		if delivery.StepIndex >= 0 {
			fmt.Fprintln(w, color.RedString("Delivery failed at step %d after %d attempts; the step stays pending.",
				delivery.StepIndex, delivery.Attempts))
		} else {
			fmt.Fprintln(w, color.RedString("Delivery failed after %d attempts (%s).",
				delivery.Attempts, delivery.Op))
		}
		if result.Submitted > 0 {
			fmt.Fprintf(w, "%d step(s) were recorded before the failure.\n", result.Submitted)
		}
		fmt.Fprintln(w, "Run the same script again to resume; recorded steps are skipped.")
		return
	}

	s := result.Session
	if result.Resumed {
		fmt.Fprintf(w, "Resumed session %s at step %d, submitted %d step(s) this run.\n",
			s.ID, result.StartStep, result.Submitted)
	} else {
		fmt.Fprintf(w, "Session %s: submitted %d step(s).\n", s.ID, result.Submitted)
	}
	if result.Finalized {
		fmt.Fprintln(w, color.GreenString("Session %s submitted with total %.2f of %.2f.",
			s.ID, s.RunningTotal, s.ScoreBudget))
	}
}

// printStepRecord reports a single manual step write.
func printStepRecord(w io.Writer, rec models.StepRecord, replaced bool) {
	verb := "Recorded"
	if replaced {
		verb = "Replaced"
	}
	fmt.Fprintf(w, "%s step %d of session %s: raw %.2f, contribution %.2f\n",
		verb, rec.StepIndex, rec.SessionID, rec.RawScore, rec.Contribution)
	if replaced {
		fmt.Fprintln(w, "The earlier record was overwritten and the running total recomputed.")
	}
}

func statusLabel(status models.SessionStatus) string {
	switch status {
	case models.SessionSubmitted:
		return color.GreenString(string(status))
	case models.SessionAbandoned:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
