package guestbook

import (
	"context"

	"github.com/kalambet/doomclock/internal/storage"
)

// Counter adds emoji reactions to entries.
type Counter struct {
	store Store
}

func NewCounter(store Store) *Counter {
	return &Counter{store: store}
}

// Increment adds one to the entry's tally for emoji and returns the entry's
// full reaction map. The add runs inside the store, so concurrent calls are
// all counted. Returns storage.ErrNotFound when the entry does not exist.
func (c *Counter) Increment(ctx context.Context, key storage.EntryKey, emoji string) (map[string]int64, error) {
	return c.store.IncrementReaction(ctx, key, emoji)
}
