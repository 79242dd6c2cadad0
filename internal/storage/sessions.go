package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new session. Existing ids are never overwritten:
// a resubmitted id returns ErrSessionExists so a terminal session can not be
// pushed back into analyzing.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.Status == "" {
		sess.Status = StatusAnalyzing
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, name, role, strengths, hobbies, status, horizon, error_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sess.ID, sess.Name, sess.Role, sess.Strengths, sess.Hobbies, string(sess.Status),
		nullFloat(sess.Horizon), FormatTime(sess.CreatedAt), FormatTime(now),
	)
	if err != nil {
		return storeErr("inserting session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("inserting session", err)
	}
	if n == 0 {
		return ErrSessionExists
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess                 Session
		status               string
		horizon              sql.NullFloat64
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, name, role, strengths, hobbies, status, horizon, error_reason, created_at, updated_at
		FROM sessions WHERE session_id = ?`, id,
	).Scan(&sess.ID, &sess.Name, &sess.Role, &sess.Strengths, &sess.Hobbies, &status, &horizon, &sess.ErrorReason, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, storeErr("reading session", err)
	}

	sess.Status = Status(status)
	if horizon.Valid {
		h := horizon.Float64
		sess.Horizon = &h
	}
	if sess.CreatedAt, err = time.Parse(TimeLayout, createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(TimeLayout, updatedAt); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}

// TransitionSession moves a session out of analyzing in one conditional
// update. Status, horizon and reason are written together, so a reader never
// sees completed without its horizon. Returns ErrNotFound for an unknown id
// and ErrConditionFailed when the session is no longer analyzing.
func (s *Store) TransitionSession(ctx context.Context, id string, to Status, horizon *float64, reason string) error {
	if !to.Terminal() {
		return fmt.Errorf("transition target %q is not terminal", to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, horizon = COALESCE(?, horizon), error_reason = ?, updated_at = ?
		WHERE session_id = ? AND status = ?`,
		string(to), nullFloat(horizon), reason, FormatTime(time.Now()), id, string(StatusAnalyzing),
	)
	if err != nil {
		return storeErr("updating session status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("updating session status", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE session_id = ?`, id).Scan(&exists); err != nil {
		return storeErr("checking session", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

// StaleSessions returns ids of sessions still analyzing that were created
// before cutoff, oldest first.
func (s *Store) StaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id FROM sessions
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC LIMIT ?`,
		string(StatusAnalyzing), FormatTime(cutoff), limit,
	)
	if err != nil {
		return nil, storeErr("listing stale sessions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scanning stale session", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
