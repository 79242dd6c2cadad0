package guestbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/doomclock/internal/storage"
)

// NewEntry is a guestbook post as submitted.
type NewEntry struct {
	SessionID string
	Role      string
	Horizon   float64
	Message   string
}

// Poster creates guestbook entries.
type Poster struct {
	store Store
	now   func() time.Time
}

func NewPoster(store Store) *Poster {
	return &Poster{store: store, now: time.Now}
}

// Post stores a new entry with a fresh id, a fixed-width UTC timestamp and
// no reactions.
func (p *Poster) Post(ctx context.Context, in NewEntry) (storage.GuestbookEntry, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return storage.GuestbookEntry{}, fmt.Errorf("%w: message is blank", ErrInvalidEntry)
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return storage.GuestbookEntry{}, fmt.Errorf("%w: session id is blank", ErrInvalidEntry)
	}

	e := storage.GuestbookEntry{
		EntryID:   uuid.NewString(),
		CreatedAt: storage.FormatTime(p.now()),
		SessionID: in.SessionID,
		Role:      in.Role,
		Horizon:   in.Horizon,
		Message:   in.Message,
		Reactions: map[string]int64{},
	}
	if err := p.store.PutEntry(ctx, e); err != nil {
		return storage.GuestbookEntry{}, err
	}
	return e, nil
}
