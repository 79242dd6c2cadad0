// Package guestbook implements posting, the emoji reaction counter and the
// newest-first feed over any store that satisfies Store.
package guestbook

import (
	"context"
	"errors"

	"github.com/kalambet/doomclock/internal/storage"
)

var (
	// ErrInvalidCursor is returned for a pagination token this package did
	// not produce.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidEntry is returned when a new entry is missing required text.
	ErrInvalidEntry = errors.New("invalid guestbook entry")
)

// Store is the guestbook persistence contract. Both the SQLite store and the
// Redis store implement it.
type Store interface {
	PutEntry(ctx context.Context, e storage.GuestbookEntry) error
	GetEntry(ctx context.Context, key storage.EntryKey) (storage.GuestbookEntry, error)
	IncrementReaction(ctx context.Context, key storage.EntryKey, emoji string) (map[string]int64, error)
	QueryEntries(ctx context.Context, limit int, after *storage.Position) ([]storage.GuestbookEntry, *storage.Position, error)
}
