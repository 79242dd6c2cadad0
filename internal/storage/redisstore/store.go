// Package redisstore keeps the guestbook in Redis. Entries are hashes, their
// reaction tallies live in a sibling hash updated with HINCRBY, and the feed
// is a sorted set read in reverse lexical order.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/doomclock/internal/storage"
)

const (
	entryKeyPrefix    = "guestbook:entry:"
	reactionKeyPrefix = "guestbook:reactions:"
	feedKeyPrefix     = "guestbook:feed:"
	memberSep         = "|"
)

// incrementScript adds one to an emoji tally only if the entry exists and
// returns the full reaction hash. Returning false surfaces as redis.Nil.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
return redis.call('HGETALL', KEYS[2])
`)

// Store implements the guestbook store contract on Redis.
type Store struct {
	client *redis.Client
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open dials addr and verifies the connection with a ping.
func Open(ctx context.Context, addr string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// PutEntry writes the entry hash and its feed member in one MULTI block.
// The reaction hash is left alone.
func (s *Store) PutEntry(ctx context.Context, e storage.GuestbookEntry) error {
	key := e.Key()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, entryKey(key), map[string]any{
			"entry_id":   e.EntryID,
			"created_at": e.CreatedAt,
			"session_id": e.SessionID,
			"role":       e.Role,
			"horizon":    strconv.FormatFloat(e.Horizon, 'f', -1, 64),
			"message":    e.Message,
		})
		pipe.ZAdd(ctx, feedKey(), redis.Z{Score: 0, Member: feedMember(key)})
		return nil
	})
	if err != nil {
		return storeErr("writing guestbook entry", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, key storage.EntryKey) (storage.GuestbookEntry, error) {
	entries, err := s.load(ctx, []storage.EntryKey{key})
	if err != nil {
		return storage.GuestbookEntry{}, err
	}
	if len(entries) == 0 {
		return storage.GuestbookEntry{}, storage.ErrNotFound
	}
	return entries[0], nil
}

// IncrementReaction runs the add server side, so concurrent callers never
// lose an update.
func (s *Store) IncrementReaction(ctx context.Context, key storage.EntryKey, emoji string) (map[string]int64, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{entryKey(key), reactionKey(key)}, emoji).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("incrementing reaction", err)
	}

	out := make(map[string]int64, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		field, _ := res[i].(string)
		raw, _ := res[i+1].(string)
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, storeErr("decoding reaction tally", err)
		}
		out[field] = n
	}
	return out, nil
}

// QueryEntries walks the feed set newest first. Members are
// "<created_at>|<entry_id>" at a shared score, so reverse lexical order is
// created_at descending with entry id as the tie breaker.
func (s *Store) QueryEntries(ctx context.Context, limit int, after *storage.Position) ([]storage.GuestbookEntry, *storage.Position, error) {
	max := "+"
	if after != nil {
		max = "(" + feedMember(storage.EntryKey{EntryID: after.EntryID, CreatedAt: after.CreatedAt})
	}
	members, err := s.client.ZRevRangeByLex(ctx, feedKey(), &redis.ZRangeBy{
		Max:   max,
		Min:   "-",
		Count: int64(limit + 1),
	}).Result()
	if err != nil {
		return nil, nil, storeErr("querying guestbook feed", err)
	}

	more := len(members) > limit
	if more {
		members = members[:limit]
	}

	keys := make([]storage.EntryKey, 0, len(members))
	for _, m := range members {
		createdAt, entryID, ok := strings.Cut(m, memberSep)
		if !ok {
			return nil, nil, storeErr("decoding feed member", fmt.Errorf("malformed member %q", m))
		}
		keys = append(keys, storage.EntryKey{EntryID: entryID, CreatedAt: createdAt})
	}

	var next *storage.Position
	if more {
		last := keys[len(keys)-1]
		next = &storage.Position{Partition: storage.FeedPartition, CreatedAt: last.CreatedAt, EntryID: last.EntryID}
	}
	entries, err := s.load(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	return entries, next, nil
}

// load fetches entry and reaction hashes for keys in one pipeline, keeping
// key order and skipping entries whose hash is gone.
func (s *Store) load(ctx context.Context, keys []storage.EntryKey) ([]storage.GuestbookEntry, error) {
	if len(keys) == 0 {
		return []storage.GuestbookEntry{}, nil
	}

	entryCmds := make([]*redis.MapStringStringCmd, len(keys))
	reactionCmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			entryCmds[i] = pipe.HGetAll(ctx, entryKey(k))
			reactionCmds[i] = pipe.HGetAll(ctx, reactionKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("loading guestbook entries", err)
	}

	entries := make([]storage.GuestbookEntry, 0, len(keys))
	for i := range keys {
		fields := entryCmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		horizon, err := strconv.ParseFloat(fields["horizon"], 64)
		if err != nil {
			return nil, storeErr("decoding horizon", err)
		}
		e := storage.GuestbookEntry{
			EntryID:   fields["entry_id"],
			CreatedAt: fields["created_at"],
			SessionID: fields["session_id"],
			Role:      fields["role"],
			Horizon:   horizon,
			Message:   fields["message"],
			Reactions: make(map[string]int64),
		}
		for emoji, raw := range reactionCmds[i].Val() {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, storeErr("decoding reaction tally", err)
			}
			e.Reactions[emoji] = n
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func entryKey(k storage.EntryKey) string {
	return entryKeyPrefix + k.EntryID + memberSep + k.CreatedAt
}

func reactionKey(k storage.EntryKey) string {
	return reactionKeyPrefix + k.EntryID + memberSep + k.CreatedAt
}

func feedKey() string {
	return feedKeyPrefix + storage.FeedPartition
}

func feedMember(k storage.EntryKey) string {
	return k.CreatedAt + memberSep + k.EntryID
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, storage.ErrStore, err)
}
