package guestbook

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/doomclock/internal/storage"
	"github.com/kalambet/doomclock/internal/storage/redisstore"
)

// backends runs fn once per Store implementation.
func backends(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := storage.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestClampLimit(t *testing.T) {
	tests := map[string]int{
		"":      DefaultLimit,
		"abc":   DefaultLimit,
		"2.5":   DefaultLimit,
		"0":     MinLimit,
		"-7":    MinLimit,
		"1":     1,
		" 42 ":  42,
		"100":   100,
		"101":   MaxLimit,
		"99999": MaxLimit,
	}
	for in, want := range tests {
		assert.Equal(t, want, ClampLimit(in), "ClampLimit(%q)", in)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	p := storage.Position{Partition: storage.FeedPartition, CreatedAt: storage.FormatTime(time.Now()), EntryID: uuid.NewString()}
	got, err := decodeCursor(encodeCursor(p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	inputs := map[string]string{
		"not base64":     "%%%",
		"not json":       enc("hello"),
		"array":          enc(`["ALL"]`),
		"wrong part":     enc(`{"gsi_pk":"SOME","created_at":"2025-01-01T00:00:00.000000000Z","entry_id":"e"}`),
		"missing id":     enc(`{"gsi_pk":"ALL","created_at":"2025-01-01T00:00:00.000000000Z"}`),
		"unknown field":  enc(`{"gsi_pk":"ALL","created_at":"x","entry_id":"e","extra":1}`),
		"trailing":       enc(`{"gsi_pk":"ALL","created_at":"x","entry_id":"e"} {}`),
		"std padding":    base64.StdEncoding.EncodeToString([]byte(`{"gsi_pk":"ALL","created_at":"x","entry_id":"e"}`)) + "==",
		"bad created_at": enc(`{"gsi_pk":"ALL","created_at":"not-a-time","entry_id":"9b2f0d7e-5c1a-4f7e-8a43-2d6c1b0e9f11"}`),
		"short fraction": enc(`{"gsi_pk":"ALL","created_at":"2025-01-01T00:00:00.000Z","entry_id":"9b2f0d7e-5c1a-4f7e-8a43-2d6c1b0e9f11"}`),
		"bad entry_id":   enc(`{"gsi_pk":"ALL","created_at":"2025-01-01T00:00:00.000000000Z","entry_id":"x"}`),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := decodeCursor(in)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestPost(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		p := NewPoster(store)
		fixed := time.Date(2025, 5, 1, 9, 30, 0, 0, time.FixedZone("KST", 9*3600))
		p.now = func() time.Time { return fixed }

		e, err := p.Post(context.Background(), NewEntry{SessionID: "s1", Role: "Developer", Horizon: 5, Message: "see you on the other side"})
		require.NoError(t, err)
		assert.NotEmpty(t, e.EntryID)
		assert.Equal(t, "2025-05-01T00:30:00.000000000Z", e.CreatedAt)
		assert.Empty(t, e.Reactions)

		got, err := store.GetEntry(context.Background(), e.Key())
		require.NoError(t, err)
		assert.Equal(t, e.Message, got.Message)
	})
}

func TestPost_RejectsBlankMessage(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		_, err := NewPoster(store).Post(context.Background(), NewEntry{SessionID: "s1", Message: "  \t\n"})
		assert.ErrorIs(t, err, ErrInvalidEntry)

		page, err := NewFeed(store).List(context.Background(), DefaultLimit, "")
		require.NoError(t, err)
		assert.Empty(t, page.Items, "a rejected entry must never be persisted")
	})
}

func TestCounter_TwoConcurrentIncrements(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		e, err := NewPoster(store).Post(context.Background(), NewEntry{SessionID: "s1", Message: "doomed"})
		require.NoError(t, err)
		c := NewCounter(store)

		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Increment(context.Background(), e.Key(), "😱")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.GetEntry(context.Background(), e.Key())
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Reactions["😱"])
	})
}

func TestCounter_ManyEmojiInterleaved(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		e, err := NewPoster(store).Post(context.Background(), NewEntry{SessionID: "s1", Message: "doomed"})
		require.NoError(t, err)
		c := NewCounter(store)

		emojis := []string{"😱", "🔥", "👍"}
		const perEmoji = 15
		var wg sync.WaitGroup
		for i := range perEmoji * len(emojis) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Increment(context.Background(), e.Key(), emojis[i%len(emojis)])
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := c.Increment(context.Background(), e.Key(), "👍")
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"😱": perEmoji, "🔥": perEmoji, "👍": perEmoji + 1}, got)
	})
}

func TestCounter_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		_, err := NewCounter(store).Increment(context.Background(), storage.EntryKey{EntryID: "ghost", CreatedAt: storage.FormatTime(time.Now())}, "😱")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestFeed_PagesToExhaustion(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		p := NewPoster(store)
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		const total = 23
		var want []string
		for i := range total {
			// Every third post shares a timestamp with its neighbour.
			at := base.Add(time.Duration(i-i%3) * time.Second)
			p.now = func() time.Time { return at }
			e, err := p.Post(context.Background(), NewEntry{SessionID: fmt.Sprintf("s%d", i), Message: "hi"})
			require.NoError(t, err)
			want = append(want, e.EntryID)
		}
		want = newestFirst(t, store, want)

		feed := NewFeed(store)
		for _, limit := range []int{1, 2, 5, 20, 23, 100} {
			t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
				var got []string
				cursor := ""
				for pages := 0; ; pages++ {
					require.Less(t, pages, total+1)
					page, err := feed.List(context.Background(), limit, cursor)
					require.NoError(t, err)
					require.LessOrEqual(t, len(page.Items), limit)
					for _, e := range page.Items {
						got = append(got, e.EntryID)
					}
					if page.NextCursor == "" {
						break
					}
					cursor = page.NextCursor
				}
				assert.Equal(t, want, got)
			})
		}
	})
}

// newestFirst orders ids by the (created_at, entry_id) descending rule.
func newestFirst(t *testing.T, store Store, ids []string) []string {
	t.Helper()
	page, err := NewFeed(store).List(context.Background(), MaxLimit, "")
	require.NoError(t, err)
	require.Len(t, page.Items, len(ids))
	out := make([]string, 0, len(ids))
	for i, e := range page.Items {
		if i > 0 {
			prev := page.Items[i-1]
			ordered := prev.CreatedAt > e.CreatedAt || (prev.CreatedAt == e.CreatedAt && prev.EntryID > e.EntryID)
			require.True(t, ordered, "entries %d and %d out of order", i-1, i)
		}
		out = append(out, e.EntryID)
	}
	assert.ElementsMatch(t, ids, out)
	return out
}

func TestFeed_InvalidCursor(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		_, err := NewFeed(store).List(context.Background(), 10, "garbage!")
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})
}

func TestFeed_ForgedCursorRejected(t *testing.T) {
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"gsi_pk":"ALL","created_at":"not-a-time","entry_id":"x"}`))
	backends(t, func(t *testing.T, store Store) {
		_, err := NewPoster(store).Post(context.Background(), NewEntry{SessionID: "s1", Message: "hi"})
		require.NoError(t, err)

		page, err := NewFeed(store).List(context.Background(), 10, forged)
		assert.ErrorIs(t, err, ErrInvalidCursor)
		assert.Empty(t, page.Items)
	})
}

func TestFeed_StableUnderConcurrentPosts(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		p := NewPoster(store)
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range 6 {
			at := base.Add(time.Duration(i) * time.Second)
			p.now = func() time.Time { return at }
			_, err := p.Post(context.Background(), NewEntry{SessionID: "s", Message: "old"})
			require.NoError(t, err)
		}

		feed := NewFeed(store)
		first, err := feed.List(context.Background(), 3, "")
		require.NoError(t, err)
		require.NotEmpty(t, first.NextCursor)

		// A newer post lands between page requests; it must not shift page two.
		p.now = func() time.Time { return base.Add(time.Hour) }
		_, err = p.Post(context.Background(), NewEntry{SessionID: "s", Message: "new"})
		require.NoError(t, err)

		second, err := feed.List(context.Background(), 3, first.NextCursor)
		require.NoError(t, err)
		require.Len(t, second.Items, 3)
		for _, e := range second.Items {
			assert.Equal(t, "old", e.Message)
			assert.Less(t, e.CreatedAt, first.Items[2].CreatedAt)
		}
		assert.Empty(t, second.NextCursor)
	})
}
