// Package eventlog records what a submission client did as an append-only
// NDJSON stream, one file per session. The stream survives client crashes,
// so a resumed run appends to the same timeline.
package eventlog

import "time"

// EventType identifies the kind of submission event.
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventSessionResumed  EventType = "session_resumed"
	EventStepSubmitted   EventType = "step_submitted"
	EventStepReplayed    EventType = "step_replayed"
	EventDeliveryFailed  EventType = "delivery_failed"
	EventFinalSubmit     EventType = "final_submit"
	EventSessionComplete EventType = "session_complete"
	EventError           EventType = "error"
)

// Event is a single timestamped entry in an event log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(sessionID, participantID string, stepCount int, scoreBudget float64) map[string]any {
	return map[string]any{
		"session_id":     sessionID,
		"participant_id": participantID,
		"step_count":     stepCount,
		"score_budget":   scoreBudget,
	}
}

// SessionResumedData returns event data for a resumed session.
func SessionResumedData(sessionID string, nextStep, recorded int, runningTotal float64) map[string]any {
	return map[string]any{
		"session_id":    sessionID,
		"next_step":     nextStep,
		"recorded":      recorded,
		"running_total": runningTotal,
	}
}

// StepSubmittedData returns event data for a delivered step.
func StepSubmittedData(stepIndex int, rawScore, contribution float64) map[string]any {
	return map[string]any{
		"step_index":   stepIndex,
		"raw_score":    rawScore,
		"contribution": contribution,
	}
}

// DeliveryFailedData returns event data for a step whose delivery exhausted
// the retry budget.
func DeliveryFailedData(stepIndex, attempts int, message string) map[string]any {
	return map[string]any{
		"step_index": stepIndex,
		"attempts":   attempts,
		"message":    message,
	}
}

// FinalSubmitData returns event data for a final submission.
func FinalSubmitData(sessionID string, runningTotal float64) map[string]any {
	return map[string]any{
		"session_id":    sessionID,
		"running_total": runningTotal,
	}
}

// SessionCompleteData returns event data for a completed session.
func SessionCompleteData(sessionID string, submitted int, runningTotal float64) map[string]any {
	return map[string]any{
		"session_id":    sessionID,
		"submitted":     submitted,
		"running_total": runningTotal,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
