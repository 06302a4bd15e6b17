package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tallyd/tally/internal/models"
)

// SQLiteStore persists the ledger in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the schema. ":memory:" gives a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" stores coherent and serializes
	// writers ahead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		step_count INTEGER NOT NULL CHECK (step_count > 0),
		score_budget REAL NOT NULL CHECK (score_budget > 0),
		max_raw_score REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		running_total REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		submitted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS step_records (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		step_index INTEGER NOT NULL,
		raw_score REAL NOT NULL,
		contribution REAL NOT NULL,
		recorded_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, step_index)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_step_records_session ON step_records(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sessionColumns = `id, participant_id, step_count, score_budget, max_raw_score, status, running_total, created_at, updated_at, submitted_at`

func (s *SQLiteStore) getSession(ctx context.Context, q querier, id string) (models.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (models.Session, error) {
	var sess models.Session
	var submittedAt sql.NullTime
	err := row.Scan(
		&sess.ID,
		&sess.ParticipantID,
		&sess.StepCount,
		&sess.ScoreBudget,
		&sess.MaxRawScore,
		&sess.Status,
		&sess.RunningTotal,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&submittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		sess.SubmittedAt = &t
	}
	return sess, nil
}

// EnsureSession creates the session if absent and returns the stored row.
func (s *SQLiteStore) EnsureSession(ctx context.Context, params SessionParams) (models.Session, error) {
	if err := params.Validate(); err != nil {
		return models.Session{}, err
	}

	sess := models.NewSession(params.ID, params.ParticipantID, params.StepCount, params.ScoreBudget, params.MaxRawScore)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, participant_id, step_count, score_budget, max_raw_score, status, running_total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.ParticipantID, sess.StepCount, sess.ScoreBudget, sess.MaxRawScore, string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}

	return s.getSession(ctx, s.db, sess.ID)
}

// RecordStep upserts the record for (sessionID, stepIndex) and recomputes
// the running total from the full record set in the same transaction.
func (s *SQLiteStore) RecordStep(ctx context.Context, sessionID string, stepIndex int, rawScore float64) (models.StepRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.StepRecord{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sess, err := s.getSession(ctx, tx, sessionID)
	if err != nil {
		return models.StepRecord{}, false, err
	}
	if err := writeGate(&sess); err != nil {
		return models.StepRecord{}, false, err
	}
	if err := checkStepBounds(&sess, stepIndex, rawScore); err != nil {
		return models.StepRecord{}, false, err
	}

	var one int
	replaced := true
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM step_records WHERE session_id = ? AND step_index = ?`, sessionID, stepIndex).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		replaced = false
	} else if err != nil {
		return models.StepRecord{}, false, fmt.Errorf("check existing record: %w", err)
	}

	rec := models.StepRecord{
		SessionID:    sessionID,
		StepIndex:    stepIndex,
		RawScore:     rawScore,
		Contribution: sess.Contribution(rawScore),
		RecordedAt:   time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO step_records (session_id, step_index, raw_score, contribution, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, step_index) DO UPDATE SET
			raw_score = excluded.raw_score,
			contribution = excluded.contribution,
			recorded_at = excluded.recorded_at`,
		rec.SessionID, rec.StepIndex, rec.RawScore, rec.Contribution, rec.RecordedAt,
	)
	if err != nil {
		return models.StepRecord{}, false, fmt.Errorf("upsert step record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			running_total = (SELECT COALESCE(SUM(contribution), 0) FROM step_records WHERE session_id = ?),
			updated_at = ?
		WHERE id = ?`,
		sessionID, rec.RecordedAt, sessionID,
	)
	if err != nil {
		return models.StepRecord{}, false, fmt.Errorf("recompute running total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.StepRecord{}, false, fmt.Errorf("commit step record: %w", err)
	}
	return rec, replaced, nil
}

// FetchProgress returns the session and its records ordered by step index.
func (s *SQLiteStore) FetchProgress(ctx context.Context, sessionID string) (models.Progress, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Progress{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sess, err := s.getSession(ctx, tx, sessionID)
	if err != nil {
		return models.Progress{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT session_id, step_index, raw_score, contribution, recorded_at
		FROM step_records
		WHERE session_id = ?
		ORDER BY step_index ASC`, sessionID)
	if err != nil {
		return models.Progress{}, fmt.Errorf("query step records: %w", err)
	}
	defer rows.Close()

	records := make([]models.StepRecord, 0, sess.StepCount)
	for rows.Next() {
		var rec models.StepRecord
		if err := rows.Scan(&rec.SessionID, &rec.StepIndex, &rec.RawScore, &rec.Contribution, &rec.RecordedAt); err != nil {
			return models.Progress{}, fmt.Errorf("scan step record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return models.Progress{}, err
	}

	return models.Progress{Session: sess, Records: records}, nil
}

// Finalize moves an in_progress session to submitted.
func (s *SQLiteStore) Finalize(ctx context.Context, sessionID string) (models.Session, error) {
	return s.transition(ctx, sessionID, models.SessionSubmitted)
}

// Abandon moves an in_progress session to abandoned.
func (s *SQLiteStore) Abandon(ctx context.Context, sessionID string) (models.Session, error) {
	return s.transition(ctx, sessionID, models.SessionAbandoned)
}

func (s *SQLiteStore) transition(ctx context.Context, sessionID string, target models.SessionStatus) (models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Session{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sess, err := s.getSession(ctx, tx, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if sess.Status == models.SessionAbandoned && target == models.SessionAbandoned {
		return sess, nil
	}
	if err := writeGate(&sess); err != nil {
		return models.Session{}, err
	}

	now := time.Now().UTC()
	var submittedAt any
	if target == models.SessionSubmitted {
		submittedAt = now
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ?, submitted_at = COALESCE(?, submitted_at) WHERE id = ?`,
		string(target), now, submittedAt, sessionID,
	)
	if err != nil {
		return models.Session{}, fmt.Errorf("update session status: %w", err)
	}

	sess, err = s.getSession(ctx, tx, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Session{}, fmt.Errorf("commit status change: %w", err)
	}
	return sess, nil
}

// AbandonStale abandons in_progress sessions idle since before cutoff.
func (s *SQLiteStore) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(models.SessionAbandoned), time.Now().UTC(), string(models.SessionInProgress), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListSessions returns sessions with the given status, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + sessionColumns + ` FROM sessions WHERE status = ? ORDER BY created_at DESC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var submittedAt sql.NullTime
		err := rows.Scan(
			&sess.ID,
			&sess.ParticipantID,
			&sess.StepCount,
			&sess.ScoreBudget,
			&sess.MaxRawScore,
			&sess.Status,
			&sess.RunningTotal,
			&sess.CreatedAt,
			&sess.UpdatedAt,
			&submittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if submittedAt.Valid {
			t := submittedAt.Time
			sess.SubmittedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)
