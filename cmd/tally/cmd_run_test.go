package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyd/tally/internal/client"
	"github.com/tallyd/tally/internal/eventlog"
	"github.com/tallyd/tally/internal/ledger"
	"github.com/tallyd/tally/internal/webapi"
)

// newLedgerServer runs the real API against an in-memory store so the CLI
// tests go through the same HTTP surface a deployed server exposes.
func newLedgerServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := ledger.NewMemoryStore()
	t.Cleanup(func() { store.Close() }) //nolint:errcheck

	mux := http.NewServeMux()
	webapi.RegisterRoutes(mux, webapi.NewHandlers(store, webapi.Options{}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// runTally executes the root command with args and returns the combined
// stdout and stderr it produced.
func runTally(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRunScript(t *testing.T, id string, steps ...float64) string {
	t.Helper()

	var sb strings.Builder
	fmt.Fprintf(&sb, "session:\n")
	fmt.Fprintf(&sb, "  id: %s\n", id)
	fmt.Fprintf(&sb, "  participant_id: p-1\n")
	fmt.Fprintf(&sb, "  step_count: %d\n", len(steps))
	fmt.Fprintf(&sb, "  score_budget: %d\n", len(steps)*10)
	fmt.Fprintf(&sb, "steps:\n")
	for _, s := range steps {
		fmt.Fprintf(&sb, "  - %g\n", s)
	}

	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestRunCommand_RequiresScriptArg(t *testing.T) {
	_, err := runTally(t, "run")
	assert.Error(t, err)
}

func TestRunCommand_SubmitsAndFinalizes(t *testing.T) {
	disableColor(t)

	srv := newLedgerServer(t)
	script := writeRunScript(t, "cli-1", 100, 50, 75)
	eventsDir := t.TempDir()

	out, err := runTally(t, "run", script, "--base-url", srv.URL, "--events-dir", eventsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "Session cli-1: submitted 3 step(s).")
	assert.Contains(t, out, "Session cli-1 submitted with total 22.50 of 30.00.")

	logs, err := eventlog.ListLogs(eventsDir)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "cli-1-events.jsonl", logs[0].Name)
	assert.Equal(t, 6, logs[0].NumEvents)
}

func TestRunCommand_RerunOfSubmittedSessionIsNoop(t *testing.T) {
	disableColor(t)

	srv := newLedgerServer(t)
	script := writeRunScript(t, "cli-2", 100, 50)
	eventsDir := t.TempDir()

	_, err := runTally(t, "run", script, "--base-url", srv.URL, "--events-dir", eventsDir)
	require.NoError(t, err)

	out, err := runTally(t, "run", script, "--base-url", srv.URL, "--events-dir", eventsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "submitted 0 step(s) this run")
}

func TestRunCommand_UnreachableServerKeepsPendingState(t *testing.T) {
	disableColor(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	script := writeRunScript(t, "cli-3", 100)
	out, err := runTally(t, "run", script, "--base-url", url, "--no-events")
	require.Error(t, err)

	var delivery *client.DeliveryFailedError
	assert.ErrorAs(t, err, &delivery)
	assert.Contains(t, out, "Delivery failed")
	assert.Contains(t, out, "Run the same script again to resume")
}

func TestRecordAndProgressCommands(t *testing.T) {
	disableColor(t)

	srv := newLedgerServer(t)
	cli, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = cli.EnsureSession(context.Background(), webapi.SessionSpec{
		SessionID:     "cli-4",
		ParticipantID: "p-1",
		StepCount:     2,
		ScoreBudget:   20,
	})
	require.NoError(t, err)

	out, err := runTally(t, "record", "cli-4", "0", "50", "--base-url", srv.URL, "--no-events")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded step 0 of session cli-4: raw 50.00, contribution 5.00")

	// Same index again: latest write wins and the total is recomputed.
	out, err = runTally(t, "record", "cli-4", "0", "80", "--base-url", srv.URL, "--no-events")
	require.NoError(t, err)
	assert.Contains(t, out, "Replaced step 0")

	out, err = runTally(t, "progress", "cli-4", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Total      8.00 of 20.00 budget")
	assert.Contains(t, out, "Steps      1 of 2 recorded")
	assert.Contains(t, out, "Next       step 1")
}

func TestRecordCommand_RejectsNonNumericArgs(t *testing.T) {
	_, err := runTally(t, "record", "cli-5", "abc", "50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step index must be an integer")

	_, err = runTally(t, "record", "cli-5", "0", "high")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw score must be a number")
}

func TestEventsCommands(t *testing.T) {
	disableColor(t)

	srv := newLedgerServer(t)
	script := writeRunScript(t, "cli-6", 100, 50)
	eventsDir := t.TempDir()

	_, err := runTally(t, "run", script, "--base-url", srv.URL, "--events-dir", eventsDir)
	require.NoError(t, err)

	out, err := runTally(t, "events", "list", "--dir", eventsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "cli-6-events.jsonl")

	out, err = runTally(t, "events", "view", eventlog.LogPath(eventsDir, "cli-6"))
	require.NoError(t, err)
	assert.Contains(t, out, "SUBMISSION TIMELINE")
	assert.Contains(t, out, "Session cli-6 started")
	assert.Contains(t, out, "Session complete")
}

func TestEventsListEmptyDir(t *testing.T) {
	out, err := runTally(t, "events", "list", "--dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No event logs found.")
}
