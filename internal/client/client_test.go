package client

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/service"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/middleware"
)

var _ service.Notifier = (*NotificationPublisher)(nil)
var _ middleware.IdempotencyStore = (*RedisIdempotencyStore)(nil)

func TestPublisherWithoutConnectionDropsEvents(t *testing.T) {
	p := NewNotificationPublisher(nil, "doc-approvals", zerolog.Nop())
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), service.Event{
			Type:       "approval_required",
			DocumentID: "doc-1",
			Recipients: []string{"boss"},
		})
	})
}

func TestNewRedisClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnavailable))
}

func TestRedisIdempotencyStoreReportsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisIdempotencyStore(client)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "k")
	assert.False(t, ok)
	assert.True(t, errors.Retryable(err))

	err = store.Put(ctx, "k", &middleware.CachedResponse{Status: 201}, time.Minute)
	assert.True(t, errors.Retryable(err))
}
