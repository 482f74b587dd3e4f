package devstub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "rdportal:stub:session:"
	refreshKeyPrefix = "rdportal:stub:refresh:"
	userKeyPrefix    = "rdportal:stub:user:"
)

// RedisSessionStore keeps stub sessions in Redis with TTLs matching their
// expiry, so most expired sessions evict themselves and the sweeper only
// has to tidy the per-user index sets.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, session Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, data, ttl)
	pipe.Set(ctx, refreshKeyPrefix+refreshKey(session.RefreshTokenHash), session.ID, ttl)
	pipe.SAdd(ctx, userKeyPrefix+session.UserID, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if session.expired(time.Now()) {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.Del(ctx, refreshKeyPrefix+refreshKey(session.RefreshTokenHash))
	pipe.SRem(ctx, userKeyPrefix+session.UserID, id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) FindByRefreshHash(ctx context.Context, hash []byte) (Session, error) {
	id, err := s.client.Get(ctx, refreshKeyPrefix+refreshKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("read refresh index: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisSessionStore) PruneUser(ctx context.Context, userID string, keep int) error {
	ids, err := s.client.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}

	var live []Session
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				s.client.SRem(ctx, userKeyPrefix+userID, id)
				continue
			}
			return err
		}
		live = append(live, session)
	}
	if len(live) <= keep {
		return nil
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	for _, session := range live[keep:] {
		if err := s.Delete(ctx, session.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisSessionStore) DeleteExpired(ctx context.Context) (int, error) {
	// Values carry TTLs, so Redis evicts them on its own; only the
	// per-user index sets accumulate stale members.
	removed := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, userKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan user indexes: %w", err)
		}
		for _, key := range keys {
			ids, err := s.client.SMembers(ctx, key).Result()
			if err != nil {
				return removed, err
			}
			for _, id := range ids {
				exists, err := s.client.Exists(ctx, sessionKeyPrefix+id).Result()
				if err != nil {
					return removed, err
				}
				if exists == 0 {
					s.client.SRem(ctx, key, id)
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}
