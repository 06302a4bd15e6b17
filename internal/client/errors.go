package client

import (
	"errors"
	"fmt"

	"github.com/tallyd/tally/internal/webapi"
)

// APIError is a structured refusal from the server. These are precondition
// failures: the request arrived, the server said no, and retrying the same
// call cannot change the answer.
type APIError struct {
	StatusCode int
	Code       int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d): %s", e.Reason, e.StatusCode, e.Message)
}

// DeliveryFailedError reports that an operation exhausted its retry budget
// without a definite answer. The write may still have landed server-side;
// the caller keeps its pending state and reconciles on the next resume.
type DeliveryFailedError struct {
	Op        string
	SessionID string
	StepIndex int // -1 when the operation is not step-scoped
	Attempts  int
	Err       error
}

func (e *DeliveryFailedError) Error() string {
	if e.StepIndex >= 0 {
		return fmt.Sprintf("%s for session %s step %d failed after %d attempts: %v",
			e.Op, e.SessionID, e.StepIndex, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s for session %s failed after %d attempts: %v",
		e.Op, e.SessionID, e.Attempts, e.Err)
}

func (e *DeliveryFailedError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is the server saying the session does not
// exist.
func IsNotFound(err error) bool { return hasReason(err, webapi.ReasonNotFound) }

// IsAlreadySubmitted reports whether err is the server refusing a write or
// finalize because the session is already submitted.
func IsAlreadySubmitted(err error) bool { return hasReason(err, webapi.ReasonAlreadySubmitted) }

// IsInvalidState reports whether err is the server refusing an operation
// against an abandoned session.
func IsInvalidState(err error) bool { return hasReason(err, webapi.ReasonInvalidState) }

func hasReason(err error, reason string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Reason == reason
}
