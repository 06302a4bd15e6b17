package client

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tallyd/tally/internal/validation"
	"github.com/tallyd/tally/internal/webapi"
)

// Script declares a full session and the raw score for each step, in
// order: the position in Steps is the step index. Because the file itself
// is the durable plan, a rerun of the same script resumes wherever the
// server says the session stands.
type Script struct {
	Session ScriptSession `yaml:"session"`
	Steps   []float64     `yaml:"steps"`
}

// ScriptSession identifies the session a script drives. The ID must be
// stable across reruns or recovery cannot find the earlier progress.
type ScriptSession struct {
	ID            string  `yaml:"id"`
	ParticipantID string  `yaml:"participant_id"`
	StepCount     int     `yaml:"step_count"`
	ScoreBudget   float64 `yaml:"score_budget"`
	MaxRawScore   float64 `yaml:"max_raw_score"`
}

// LoadScript reads, schema-validates and decodes a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	if errs := validation.ValidateScriptBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("script %s is invalid: %s", path, strings.Join(errs, "; "))
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("script %s is invalid: %w", path, err)
	}
	return &s, nil
}

// Validate checks the cross-field rules the schema cannot express.
func (s *Script) Validate() error {
	if len(s.Steps) != s.Session.StepCount {
		return fmt.Errorf("session declares %d steps but the script lists %d scores",
			s.Session.StepCount, len(s.Steps))
	}
	return nil
}

// Spec converts the script header into the wire creation request.
func (s *Script) Spec() webapi.SessionSpec {
	return webapi.SessionSpec{
		SessionID:     s.Session.ID,
		ParticipantID: s.Session.ParticipantID,
		StepCount:     s.Session.StepCount,
		ScoreBudget:   s.Session.ScoreBudget,
		MaxRawScore:   s.Session.MaxRawScore,
	}
}
