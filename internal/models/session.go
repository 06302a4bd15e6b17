package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionSubmitted  SessionStatus = "submitted"
	SessionAbandoned  SessionStatus = "abandoned"
)

// DefaultMaxRawScore is the upper bound of the raw score range when a
// session does not declare one.
const DefaultMaxRawScore = 100.0

// Session is the durable root of a participant's attempt. StepCount,
// ScoreBudget and MaxRawScore are fixed at creation; RunningTotal is
// recomputed from the full record set on every write, never incremented.
type Session struct {
	ID            string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	StepCount     int           `json:"step_count"`
	ScoreBudget   float64       `json:"score_budget"`
	MaxRawScore   float64       `json:"max_raw_score"`
	Status        SessionStatus `json:"status"`
	RunningTotal  float64       `json:"running_total"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
}

// NewSession builds an in_progress session. An empty id gets a generated
// UUID; a zero maxRawScore falls back to [DefaultMaxRawScore].
func NewSession(id, participantID string, stepCount int, scoreBudget, maxRawScore float64) Session {
	if id == "" {
		id = uuid.New().String()
	}
	if maxRawScore <= 0 {
		maxRawScore = DefaultMaxRawScore
	}
	now := time.Now().UTC()
	return Session{
		ID:            id,
		ParticipantID: participantID,
		StepCount:     stepCount,
		ScoreBudget:   scoreBudget,
		MaxRawScore:   maxRawScore,
		Status:        SessionInProgress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// StepWeight returns the fixed share of the score budget a single step can
// contribute. Because the weight never changes after creation, the sum of
// all contributions is bounded by the budget without any runtime clamping.
func (s *Session) StepWeight() float64 {
	if s.StepCount <= 0 {
		return 0
	}
	return s.ScoreBudget / float64(s.StepCount)
}

// Contribution converts a raw step score into budget points:
// (rawScore / MaxRawScore) * StepWeight.
func (s *Session) Contribution(rawScore float64) float64 {
	max := s.MaxRawScore
	if max <= 0 {
		max = DefaultMaxRawScore
	}
	return rawScore / max * s.StepWeight()
}

// Writable reports whether the session still accepts step records.
func (s *Session) Writable() bool {
	return s.Status == SessionInProgress
}
