package redisstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/doomclock/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func putEntry(t *testing.T, s *Store, id string, at time.Time) storage.GuestbookEntry {
	t.Helper()
	e := storage.GuestbookEntry{
		EntryID:   id,
		CreatedAt: storage.FormatTime(at),
		SessionID: "s-" + id,
		Role:      "Developer",
		Horizon:   4.5,
		Message:   "hello from " + id,
	}
	require.NoError(t, s.PutEntry(context.Background(), e))
	return e
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	s, err := Open(context.Background(), addr, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	mr.Close()
	_, err = Open(context.Background(), addr, 0)
	assert.Error(t, err)
}

func TestPutAndGetEntry(t *testing.T) {
	s, _ := newTestStore(t)
	e := putEntry(t, s, "e1", time.Now())

	got, err := s.GetEntry(context.Background(), e.Key())
	require.NoError(t, err)
	assert.Equal(t, e.Message, got.Message)
	assert.InDelta(t, 4.5, got.Horizon, 1e-9)
	assert.Empty(t, got.Reactions)
	assert.NotNil(t, got.Reactions)

	_, err = s.GetEntry(context.Background(), storage.EntryKey{EntryID: "ghost", CreatedAt: e.CreatedAt})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIncrementReaction(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	e := putEntry(t, s, "e1", time.Now())

	got, err := s.IncrementReaction(ctx, e.Key(), "😱")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"😱": 1}, got)

	got, err = s.IncrementReaction(ctx, e.Key(), "👍")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"😱": 1, "👍": 1}, got)

	_, err = s.IncrementReaction(ctx, storage.EntryKey{EntryID: "ghost", CreatedAt: e.CreatedAt}, "😱")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIncrementReaction_Concurrent(t *testing.T) {
	s, _ := newTestStore(t)
	e := putEntry(t, s, "e1", time.Now())

	const n = 40
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementReaction(context.Background(), e.Key(), "😱")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetEntry(context.Background(), e.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Reactions["😱"])
}

func TestIncrementReaction_BackendDown(t *testing.T) {
	s, mr := newTestStore(t)
	e := putEntry(t, s, "e1", time.Now())
	mr.Close()

	_, err := s.IncrementReaction(context.Background(), e.Key(), "😱")
	assert.ErrorIs(t, err, storage.ErrStore)
}

func TestQueryEntries_PaginatesToExhaustion(t *testing.T) {
	s, _ := newTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	const total = 9
	var want []string
	for i := range total {
		putEntry(t, s, fmt.Sprintf("e%02d", i), base.Add(time.Duration(i/3)*time.Millisecond))
	}
	for i := total - 1; i >= 0; i-- {
		want = append(want, fmt.Sprintf("e%02d", i))
	}

	for _, size := range []int{1, 2, 4, total, 50} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			var got []string
			var after *storage.Position
			for pages := 0; ; pages++ {
				require.Less(t, pages, total+2)
				entries, next, err := s.QueryEntries(context.Background(), size, after)
				require.NoError(t, err)
				for _, e := range entries {
					got = append(got, e.EntryID)
				}
				if next == nil {
					break
				}
				after = next
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestQueryEntries_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	entries, next, err := s.QueryEntries(context.Background(), 20, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Nil(t, next)
}
