package guestbook

import (
	"context"
	"strconv"
	"strings"

	"github.com/kalambet/doomclock/internal/storage"
)

const (
	DefaultLimit = 20
	MinLimit     = 1
	MaxLimit     = 100
)

// Page is one slice of the feed. NextCursor is empty once the feed is exhausted.
type Page struct {
	Items      []storage.GuestbookEntry `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// ClampLimit parses a page size. Absent or unparsable input yields
// DefaultLimit; everything else is clamped into [MinLimit, MaxLimit].
func ClampLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLimit
	}
	return min(max(n, MinLimit), MaxLimit)
}

// Feed lists entries newest first, ties broken by entry id.
type Feed struct {
	store Store
}

func NewFeed(store Store) *Feed {
	return &Feed{store: store}
}

// List returns up to limit entries after cursor. An empty cursor starts at
// the newest entry.
func (f *Feed) List(ctx context.Context, limit int, cursor string) (Page, error) {
	limit = min(max(limit, MinLimit), MaxLimit)

	var after *storage.Position
	if cursor != "" {
		p, err := decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		after = &p
	}

	items, next, err := f.store.QueryEntries(ctx, limit, after)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []storage.GuestbookEntry{}
	}

	page := Page{Items: items}
	if next != nil {
		page.NextCursor = encodeCursor(*next)
	}
	return page, nil
}
