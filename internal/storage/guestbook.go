package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PutEntry upserts a guestbook entry. Reactions are kept in their own table
// and are never touched here.
func (s *Store) PutEntry(ctx context.Context, e GuestbookEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guestbook_entries (entry_id, created_at, gsi_pk, session_id, role, horizon, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id, created_at) DO UPDATE SET
			session_id = excluded.session_id,
			role = excluded.role,
			horizon = excluded.horizon,
			message = excluded.message`,
		e.EntryID, e.CreatedAt, FeedPartition, e.SessionID, e.Role, e.Horizon, e.Message,
	)
	if err != nil {
		return storeErr("writing guestbook entry", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, key EntryKey) (GuestbookEntry, error) {
	var e GuestbookEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_id, created_at, session_id, role, horizon, message
		FROM guestbook_entries WHERE entry_id = ? AND created_at = ?`, key.EntryID, key.CreatedAt,
	).Scan(&e.EntryID, &e.CreatedAt, &e.SessionID, &e.Role, &e.Horizon, &e.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return GuestbookEntry{}, ErrNotFound
	}
	if err != nil {
		return GuestbookEntry{}, storeErr("reading guestbook entry", err)
	}

	reactions, err := s.reactionsByEntry(ctx, s.db, []string{e.EntryID})
	if err != nil {
		return GuestbookEntry{}, err
	}
	e.Reactions = reactions[e.Key()]
	if e.Reactions == nil {
		e.Reactions = map[string]int64{}
	}
	return e, nil
}

// IncrementReaction adds one to the emoji's tally with a single upsert and
// returns the entry's full reaction map as of that write. The add happens in
// the database, so concurrent increments are never lost.
func (s *Store) IncrementReaction(ctx context.Context, key EntryKey, emoji string) (map[string]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning reaction transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO guestbook_reactions (entry_id, created_at, emoji, tally)
		SELECT entry_id, created_at, ?, 1 FROM guestbook_entries
		WHERE entry_id = ? AND created_at = ?
		ON CONFLICT(entry_id, created_at, emoji) DO UPDATE SET tally = tally + 1`,
		emoji, key.EntryID, key.CreatedAt,
	)
	if err != nil {
		return nil, storeErr("incrementing reaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr("incrementing reaction", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	reactions, err := s.reactionsByEntry(ctx, tx, []string{key.EntryID})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing reaction", err)
	}

	out := reactions[key]
	if out == nil {
		out = map[string]int64{}
	}
	return out, nil
}

// QueryEntries lists the feed partition newest first, ties broken by entry id
// descending. after, when non-nil, is an exclusive start position. The returned
// position is nil once the partition is exhausted.
func (s *Store) QueryEntries(ctx context.Context, limit int, after *Position) ([]GuestbookEntry, *Position, error) {
	query := `SELECT entry_id, created_at, session_id, role, horizon, message
		FROM guestbook_entries WHERE gsi_pk = ?`
	args := []any{FeedPartition}
	if after != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND entry_id < ?))`
		args = append(args, after.CreatedAt, after.CreatedAt, after.EntryID)
	}
	query += ` ORDER BY created_at DESC, entry_id DESC LIMIT ?`
	// One extra row tells us whether another page exists.
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, storeErr("querying guestbook", err)
	}

	var entries []GuestbookEntry
	for rows.Next() {
		var e GuestbookEntry
		if err := rows.Scan(&e.EntryID, &e.CreatedAt, &e.SessionID, &e.Role, &e.Horizon, &e.Message); err != nil {
			rows.Close()
			return nil, nil, storeErr("scanning guestbook entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, storeErr("iterating guestbook", err)
	}
	// The single pooled connection must be released before the next query.
	rows.Close()

	var next *Position
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = &Position{Partition: FeedPartition, CreatedAt: last.CreatedAt, EntryID: last.EntryID}
	}
	if len(entries) == 0 {
		return entries, nil, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.EntryID
	}
	reactions, err := s.reactionsByEntry(ctx, s.db, ids)
	if err != nil {
		return nil, nil, err
	}
	for i := range entries {
		entries[i].Reactions = reactions[entries[i].Key()]
		if entries[i].Reactions == nil {
			entries[i].Reactions = map[string]int64{}
		}
	}
	return entries, next, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) reactionsByEntry(ctx context.Context, q querier, entryIDs []string) (map[EntryKey]map[string]int64, error) {
	placeholders := strings.Repeat(",?", len(entryIDs)-1)
	args := make([]any, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT entry_id, created_at, emoji, tally FROM guestbook_reactions
		WHERE entry_id IN (?`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, storeErr("querying reactions", err)
	}
	defer rows.Close()

	out := make(map[EntryKey]map[string]int64)
	for rows.Next() {
		var key EntryKey
		var emoji string
		var tally int64
		if err := rows.Scan(&key.EntryID, &key.CreatedAt, &emoji, &tally); err != nil {
			return nil, storeErr("scanning reaction", err)
		}
		if out[key] == nil {
			out[key] = make(map[string]int64)
		}
		out[key][emoji] = tally
	}
	return out, rows.Err()
}
