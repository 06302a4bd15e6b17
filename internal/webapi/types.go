package webapi

import (
	"github.com/tallyd/tally/internal/batch"
	"github.com/tallyd/tally/internal/models"
)

// Machine-readable error categories. Clients branch on Reason; the message
// text is for humans.
const (
	ReasonValidation       = "validation"
	ReasonNotFound         = "not_found"
	ReasonAlreadySubmitted = "already_submitted"
	ReasonInvalidState     = "invalid_state"
	ReasonBatchTooLarge    = "batch_too_large"
	ReasonInternal         = "internal"
)

// SessionSpec carries session creation parameters on the wire.
type SessionSpec struct {
	SessionID     string  `json:"session_id,omitempty"`
	ParticipantID string  `json:"participant_id" validate:"required"`
	StepCount     int     `json:"step_count" validate:"required,gt=0"`
	ScoreBudget   float64 `json:"score_budget" validate:"required,gt=0"`
	MaxRawScore   float64 `json:"max_raw_score,omitempty" validate:"gte=0"`
}

// RecordStepRequest is the body of PUT /api/sessions/{id}/steps/{index}.
// Session, when present, lets the first step write create the session.
type RecordStepRequest struct {
	RawScore float64      `json:"raw_score" validate:"gte=0"`
	Session  *SessionSpec `json:"session,omitempty"`
}

// BatchImportRequest is the body of POST /api/batch/import. Items are
// processed in order, in chunks; each item succeeds or fails on its own.
// DefaultSession fills in session fields an item payload leaves out, for
// the common case of one backlog targeting one session.
type BatchImportRequest struct {
	Source         string       `json:"source,omitempty"`
	DefaultSession *SessionSpec `json:"default_session,omitempty"`
	Items          []batch.Item `json:"items" validate:"required,min=1"`
}

// BatchItemResult is the per-item outcome slot, aligned index-for-index
// with the submitted items.
type BatchItemResult struct {
	Index int                `json:"index"`
	OK    bool               `json:"ok"`
	Error string             `json:"error,omitempty"`
	Step  *models.StepRecord `json:"step,omitempty"`
}

// BatchImportResponse summarizes one accepted batch.
type BatchImportResponse struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}
