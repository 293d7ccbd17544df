package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const approvalKeyPrefix = "mosque-dashboard:audio-approved:"

// RedisStore keeps the audio approval flag in redis so several kiosks behind
// one origin share it.
type RedisStore struct {
	rdb *redis.Client
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NewRedisStore connects to redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Approved reports whether audio was approved for origin.
func (s *RedisStore) Approved(ctx context.Context, origin string) (bool, error) {
	val, err := s.rdb.Get(ctx, approvalKeyPrefix+origin).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get approval: %w", err)
	}
	return val == "1", nil
}

// SetApproved records the approval flag for origin.
func (s *RedisStore) SetApproved(ctx context.Context, origin string, approved bool) error {
	key := approvalKeyPrefix + origin
	if !approved {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del approval: %w", err)
		}
		return nil
	}
	if err := s.rdb.Set(ctx, key, "1", 0).Err(); err != nil {
		return fmt.Errorf("redis set approval: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
