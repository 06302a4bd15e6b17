package models

// Progress is the full recoverable state of a session: the session row plus
// every step record, ordered by step index. It is the unit a client needs to
// reconcile against after losing local state.
type Progress struct {
	Session Session      `json:"session"`
	Records []StepRecord `json:"records"`
}

// NextStepIndex returns the step a resuming client should work on next: one
// past the highest recorded index, or 0 when nothing has been recorded. A
// value equal to StepCount means every step is answered and the session is
// ready for final submission.
func (p *Progress) NextStepIndex() int {
	next := 0
	for _, r := range p.Records {
		if r.StepIndex+1 > next {
			next = r.StepIndex + 1
		}
	}
	return next
}

// Complete reports whether every step has a record. Records are unique per
// index, so a simple count suffices.
func (p *Progress) Complete() bool {
	return len(p.Records) >= p.Session.StepCount
}

// Record returns the record for stepIndex, or false when the step has no
// record yet.
func (p *Progress) Record(stepIndex int) (StepRecord, bool) {
	for _, r := range p.Records {
		if r.StepIndex == stepIndex {
			return r, true
		}
	}
	return StepRecord{}, false
}
