// Package gamestore keeps live session snapshots in redis so games survive a restart.
package gamestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
)

// DefaultTTL bounds how long an abandoned snapshot lingers.
const DefaultTTL = 24 * time.Hour

var (
	// ErrStale is returned when a snapshot older than the stored one is saved.
	ErrStale = errors.New("stale snapshot")
	// ErrFinished is returned when a snapshot arrives after its game was deleted as finished.
	ErrFinished = errors.New("game already finished")
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// Open connects to REDIS_URL (redis:// or rediss://) and pings it.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for the game store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, DefaultTTL), nil
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Client exposes the underlying client for components sharing the connection.
func (s *Store) Client() *redis.Client { return s.rdb }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Save writes st unless the stored snapshot already has more moves or the game was
// deleted as finished, using WATCH for optimistic concurrency between writers.
func (s *Store) Save(ctx context.Context, st session.State) error {
	key, done := gameKey(st.ID), doneKey(st.ID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, done).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrFinished
		}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var cur session.State
			if jerr := json.Unmarshal(raw, &cur); jerr == nil && len(cur.MovesSAN) > len(st.MovesSAN) {
				return ErrStale
			}
		}
		body, err := json.Marshal(&st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, s.ttl)
			for _, seat := range []session.Seat{st.White, st.Black} {
				if seat.Bot || strings.TrimSpace(seat.PlayerID) == "" {
					continue
				}
				pipe.SAdd(ctx, playerKey(seat.PlayerID), st.ID)
				pipe.Expire(ctx, playerKey(seat.PlayerID), s.ttl)
			}
			return nil
		})
		return err
	}, key, done)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("save %s: concurrent update", st.ID)
	}
	return err
}

// Load returns nil, nil when no snapshot exists.
func (s *Store) Load(ctx context.Context, id string) (*session.State, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st session.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return &st, nil
}

// Delete removes the snapshot and its player index entries and leaves a tombstone, so a
// snapshot written late by a slow writer cannot bring the game back.
func (s *Store) Delete(ctx context.Context, st session.State) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, gameKey(st.ID))
	pipe.Set(ctx, doneKey(st.ID), "1", s.ttl)
	for _, seat := range []session.Seat{st.White, st.Black} {
		if !seat.Bot && seat.PlayerID != "" {
			pipe.SRem(ctx, playerKey(seat.PlayerID), st.ID)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveForPlayer returns the most recently updated active snapshot of playerID.
func (s *Store) ActiveForPlayer(ctx context.Context, playerID string) (*session.State, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, nil
	}
	ids, err := s.rdb.SMembers(ctx, playerKey(playerID)).Result()
	if err != nil {
		return nil, err
	}
	var list []*session.State
	for _, id := range ids {
		st, err := s.Load(ctx, id)
		if err != nil {
			obslog.L().Warn("gamestore_load_failed", zap.String("game_id", id), zap.Error(err))
			continue
		}
		if st == nil {
			// snapshot expired before its index entry
			_ = s.rdb.SRem(ctx, playerKey(playerID), id).Err()
			continue
		}
		if st.Status == session.StatusActive {
			list = append(list, st)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list[0], nil
}

func gameKey(id string) string   { return "arena:game:" + strings.TrimSpace(id) }
func playerKey(id string) string { return "arena:player:" + strings.TrimSpace(id) }
func doneKey(id string) string   { return "arena:done:" + strings.TrimSpace(id) }

// ParseRedisURL turns redis://[:password@]host:port[/db] into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
