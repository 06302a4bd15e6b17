package ledger

import (
	"errors"
	"fmt"
)

// Precondition failures a caller can branch on. These are terminal: retrying
// the same call can never succeed.
var (
	// ErrSessionNotFound is returned when a session ID does not match any
	// stored session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadySubmitted is returned for writes and repeat finalizations
	// against a submitted session. For a finalize call it is
	// success-equivalent: the session reached the submitted state.
	ErrAlreadySubmitted = errors.New("session already submitted")
	// ErrSessionAbandoned is returned for writes and finalizations against
	// an abandoned session.
	ErrSessionAbandoned = errors.New("session abandoned")
)

// ValidationError marks input the ledger refuses to store.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// OutOfRangeError reports a step index or raw score outside the range the
// session declared at creation.
type OutOfRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %g outside valid range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}
