package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/middleware"
)

const idempotencyKeyPrefix = "doc-approvals:idem:"

// RedisIdempotencyStore keeps replayable HTTP responses in Redis.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, errors.Unavailable(err, "failed to connect to redis")
	}
	return client, nil
}

// NewRedisIdempotencyStore creates a store on an existing client.
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Get implements middleware.IdempotencyStore.
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*middleware.CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Unavailable(err, "failed to read idempotency key")
	}

	var resp middleware.CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "corrupt idempotency entry")
	}
	return &resp, true, nil
}

// Put implements middleware.IdempotencyStore. The first writer for a key
// wins.
func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, resp *middleware.CachedResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode idempotency entry")
	}
	if err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, raw, ttl).Err(); err != nil {
		return errors.Unavailable(err, "failed to store idempotency key")
	}
	return nil
}
