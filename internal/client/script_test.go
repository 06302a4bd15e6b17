package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadScript(t *testing.T) {
	path := writeScript(t, `
session:
  id: run-1
  participant_id: p-7
  step_count: 3
  score_budget: 30
steps:
  - 100
  - 52.5
  - 0
`)

	script, err := LoadScript(path)
	require.NoError(t, err)

	assert.Equal(t, "run-1", script.Session.ID)
	assert.Equal(t, "p-7", script.Session.ParticipantID)
	assert.Equal(t, []float64{100, 52.5, 0}, script.Steps)

	spec := script.Spec()
	assert.Equal(t, "run-1", spec.SessionID)
	assert.Equal(t, 3, spec.StepCount)
	assert.InDelta(t, 30.0, spec.ScoreBudget, 1e-9)
}

func TestLoadScriptSchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantIn   string
	}{
		{
			name: "missing session id",
			contents: `
session:
  participant_id: p-7
  step_count: 2
  score_budget: 20
steps: [10, 20]
`,
			wantIn: "id",
		},
		{
			name: "zero step count",
			contents: `
session:
  id: run-1
  participant_id: p-7
  step_count: 0
  score_budget: 20
steps: [10]
`,
			wantIn: "step_count",
		},
		{
			name: "negative score",
			contents: `
session:
  id: run-1
  participant_id: p-7
  step_count: 1
  score_budget: 20
steps: [-4]
`,
			wantIn: "steps",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(writeScript(t, tt.contents))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantIn)
		})
	}
}

func TestLoadScriptStepCountMismatch(t *testing.T) {
	path := writeScript(t, `
session:
  id: run-1
  participant_id: p-7
  step_count: 3
  score_budget: 30
steps: [100, 50]
`)

	_, err := LoadScript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares 3 steps")
}

func TestLoadScriptMissingFile(t *testing.T) {
	_, err := LoadScript(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
