package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rdportal:token:"

// RedisStore keeps tokens in Redis. Used where the session outlives a single
// host, e.g. a gateway deployment with more than one replica.
type RedisStore struct {
	client     *redis.Client
	accessKey  string
	refreshKey string
}

func NewRedisStore(client *redis.Client, accessKey string, refreshKey string) *RedisStore {
	if accessKey == "" {
		accessKey = "access_token"
	}
	if refreshKey == "" {
		refreshKey = "refresh_token"
	}
	return &RedisStore{
		client:     client,
		accessKey:  redisKeyPrefix + accessKey,
		refreshKey: redisKeyPrefix + refreshKey,
	}
}

func (s *RedisStore) Access(ctx context.Context) (string, error) {
	return s.read(ctx, s.accessKey)
}

func (s *RedisStore) SetAccess(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.accessKey, token, 0).Err()
}

func (s *RedisStore) Refresh(ctx context.Context) (string, error) {
	return s.read(ctx, s.refreshKey)
}

func (s *RedisStore) SetRefresh(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.refreshKey, token, 0).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.accessKey, s.refreshKey).Err(); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) read(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return val, nil
}
