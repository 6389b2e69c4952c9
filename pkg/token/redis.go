package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tok:"

// RedisStore keeps token records as JSON values under a store-native TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, rec Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// SetNX makes check-then-insert a single step; a losing writer sees
	// ErrTokenExists and draws a fresh token.
	ok, err := s.client.SetNX(ctx, keyPrefix+rec.Token, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, rec.Token)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Record, error) {
	payload, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("corrupt token record %s: %w", token, err)
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	removed, err := s.client.Del(ctx, keyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed > 0, nil
}

func (s *RedisStore) Exists(ctx context.Context, token string) (bool, error) {
	count, err := s.client.Exists(ctx, keyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count > 0, nil
}
