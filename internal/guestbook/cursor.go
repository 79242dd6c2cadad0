package guestbook

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/doomclock/internal/storage"
)

// encodeCursor turns a store position into an opaque URL-safe token.
func encodeCursor(p storage.Position) string {
	b, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor is the exact inverse of encodeCursor. Anything it can not
// read back into a complete feed position is ErrInvalidCursor.
func decodeCursor(token string) (storage.Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return storage.Position{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	var p storage.Position
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return storage.Position{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if dec.More() {
		return storage.Position{}, fmt.Errorf("%w: trailing data", ErrInvalidCursor)
	}
	if p.Partition != storage.FeedPartition || p.CreatedAt == "" || p.EntryID == "" {
		return storage.Position{}, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}
	if _, err := time.Parse(storage.TimeLayout, p.CreatedAt); err != nil {
		return storage.Position{}, fmt.Errorf("%w: created_at: %w", ErrInvalidCursor, err)
	}
	// Entries only enter the feed through Poster, which assigns UUIDs.
	if _, err := uuid.Parse(p.EntryID); err != nil {
		return storage.Position{}, fmt.Errorf("%w: entry_id: %w", ErrInvalidCursor, err)
	}
	return p, nil
}
