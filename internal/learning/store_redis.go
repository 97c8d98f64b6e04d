package learning

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	badPrefix  = "learn:bad:"
	goodPrefix = "learn:good:"
)

// RedisStore shares memories across server instances. Sets expire after ttl of inactivity.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) RecordBad(ctx context.Context, key, move string) error {
	return s.add(ctx, badPrefix+hashKey(PositionKey(key)), move)
}

func (s *RedisStore) RecordGood(ctx context.Context, key, move string) error {
	return s.add(ctx, goodPrefix+hashKey(PositionKey(key)), move)
}

func (s *RedisStore) Bad(ctx context.Context, key string) ([]string, error) {
	return s.members(ctx, badPrefix+hashKey(PositionKey(key)))
}

func (s *RedisStore) Good(ctx context.Context, key string) ([]string, error) {
	return s.members(ctx, goodPrefix+hashKey(PositionKey(key)))
}

func (s *RedisStore) add(ctx context.Context, k, move string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, k, move)
	pipe.Expire(ctx, k, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) members(ctx context.Context, k string) ([]string, error) {
	out, err := s.rdb.SMembers(ctx, k).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
