package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tallyd/tally/internal/models"
)

// MemoryStore keeps the ledger in process memory. It backs tests and
// throwaway dev servers; durability comes from SQLiteStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

type memSession struct {
	session models.Session
	records map[int]models.StepRecord
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memSession)}
}

// EnsureSession creates the session if absent and returns it.
func (m *MemoryStore) EnsureSession(ctx context.Context, params SessionParams) (models.Session, error) {
	if err := params.Validate(); err != nil {
		return models.Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if params.ID != "" {
		if ms, ok := m.sessions[params.ID]; ok {
			return ms.session, nil
		}
	}

	sess := models.NewSession(params.ID, params.ParticipantID, params.StepCount, params.ScoreBudget, params.MaxRawScore)
	m.sessions[sess.ID] = &memSession{
		session: sess,
		records: make(map[int]models.StepRecord),
	}
	return sess, nil
}

// RecordStep upserts the record for (sessionID, stepIndex) and recomputes
// the running total from the full record set.
func (m *MemoryStore) RecordStep(ctx context.Context, sessionID string, stepIndex int, rawScore float64) (models.StepRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return models.StepRecord{}, false, ErrSessionNotFound
	}
	if err := writeGate(&ms.session); err != nil {
		return models.StepRecord{}, false, err
	}
	if err := checkStepBounds(&ms.session, stepIndex, rawScore); err != nil {
		return models.StepRecord{}, false, err
	}

	_, replaced := ms.records[stepIndex]
	rec := models.StepRecord{
		SessionID:    sessionID,
		StepIndex:    stepIndex,
		RawScore:     rawScore,
		Contribution: ms.session.Contribution(rawScore),
		RecordedAt:   time.Now().UTC(),
	}
	ms.records[stepIndex] = rec

	total := 0.0
	for _, r := range ms.records {
		total += r.Contribution
	}
	ms.session.RunningTotal = total
	ms.session.UpdatedAt = rec.RecordedAt

	return rec, replaced, nil
}

// FetchProgress returns the session and its records ordered by step index.
func (m *MemoryStore) FetchProgress(ctx context.Context, sessionID string) (models.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return models.Progress{}, ErrSessionNotFound
	}

	records := make([]models.StepRecord, 0, len(ms.records))
	for _, r := range ms.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StepIndex < records[j].StepIndex })

	return models.Progress{Session: ms.session, Records: records}, nil
}

// Finalize moves an in_progress session to submitted.
func (m *MemoryStore) Finalize(ctx context.Context, sessionID string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	if err := writeGate(&ms.session); err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	ms.session.Status = models.SessionSubmitted
	ms.session.SubmittedAt = &now
	ms.session.UpdatedAt = now
	return ms.session, nil
}

// Abandon moves an in_progress session to abandoned.
func (m *MemoryStore) Abandon(ctx context.Context, sessionID string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	switch ms.session.Status {
	case models.SessionSubmitted:
		return models.Session{}, ErrAlreadySubmitted
	case models.SessionAbandoned:
		return ms.session, nil
	}

	ms.session.Status = models.SessionAbandoned
	ms.session.UpdatedAt = time.Now().UTC()
	return ms.session, nil
}

// AbandonStale abandons in_progress sessions idle since before cutoff.
func (m *MemoryStore) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for _, ms := range m.sessions {
		if ms.session.Status != models.SessionInProgress {
			continue
		}
		if !ms.session.UpdatedAt.Before(cutoff) {
			continue
		}
		ms.session.Status = models.SessionAbandoned
		ms.session.UpdatedAt = now
		count++
	}
	return count, nil
}

// ListSessions returns sessions with the given status, newest first.
func (m *MemoryStore) ListSessions(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]models.Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		if status != "" && ms.session.Status != status {
			continue
		}
		sessions = append(sessions, ms.session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// Ensure MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)
