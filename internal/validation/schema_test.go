package validation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validScriptYAML = `session:
  id: sess-001
  participant_id: p-42
  step_count: 5
  score_budget: 50
  max_raw_score: 100
steps: [80, 100, 95.5, 70, 60]
`

const invalidScriptYAML = `session:
  participant_id: p-42
  step_count: 0
  score_budget: 50
steps: []
`

const validBatchJSON = `{
  "source": "nightly-import",
  "items": [
    {
      "kind": "record_step",
      "payload": {"session_id": "sess-001", "step_index": 0, "raw_score": 80}
    },
    {
      "id": "row-2",
      "kind": "record_step",
      "payload": {
        "session_id": "sess-002",
        "step_index": 3,
        "raw_score": 64,
        "participant_id": "p-7",
        "step_count": 10,
        "score_budget": 100
      }
    }
  ]
}`

const invalidBatchJSON = `{
  "items": [
    {
      "kind": "delete_everything",
      "payload": {"session_id": "sess-001", "step_index": -1}
    }
  ]
}`

func TestValidateBatchImport_Valid(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(validBatchJSON), &doc))

	require.NoError(t, ValidateBatchImport(doc))
}

func TestValidateBatchImport_Invalid(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(invalidBatchJSON), &doc))

	err := ValidateBatchImport(doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kind")
	require.Contains(t, err.Error(), "raw_score")
}

func TestValidateBatchImport_EmptyItems(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"items": []}`), &doc))

	require.Error(t, ValidateBatchImport(doc))
}

func TestValidateScriptBytes_Valid(t *testing.T) {
	errs := ValidateScriptBytes([]byte(validScriptYAML))
	require.Empty(t, errs, "valid script should have no errors")
}

func TestValidateScriptBytes_Invalid(t *testing.T) {
	errs := ValidateScriptBytes([]byte(invalidScriptYAML))
	require.NotEmpty(t, errs, "invalid script should have errors")

	joined := joinErrs(errs)
	require.Contains(t, joined, "id")
	require.Contains(t, joined, "step_count")
	require.Contains(t, joined, "steps")
}

func TestValidateScriptBytes_NotYAML(t *testing.T) {
	errs := ValidateScriptBytes([]byte("\t{nope"))
	require.NotEmpty(t, errs)
}

func TestValidateScriptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScriptYAML), 0644))

	errs, err := ValidateScriptFile(path)
	require.NoError(t, err)
	require.Empty(t, errs)
}

func TestValidateScriptFile_NotFound(t *testing.T) {
	_, err := ValidateScriptFile("/nonexistent/session.yaml")
	require.Error(t, err)
}

func joinErrs(errs []string) string {
	result := ""
	for _, e := range errs {
		result += e + "\n"
	}
	return result
}
