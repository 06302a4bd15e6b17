package models

import "time"

// StepRecord is one durable step completion. Records are keyed by
// (SessionID, StepIndex); recording the same key again replaces the record
// wholesale, so replays and reordered retries are harmless.
type StepRecord struct {
	SessionID    string    `json:"session_id"`
	StepIndex    int       `json:"step_index"`
	RawScore     float64   `json:"raw_score"`
	Contribution float64   `json:"contribution"`
	RecordedAt   time.Time `json:"recorded_at"`
}
