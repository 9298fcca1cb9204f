//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"cityledger/internal/platform/config"
	"cityledger/internal/platform/redis"
)

// RedisContainer holds a Redis instance and a client built the same way the
// server builds its sequence client.
type RedisContainer struct {
	Container testcontainers.Container
	Config    config.RedisConfig
	Client    *redis.Client
}

// NewRedisContainer starts Redis. The shared Manager owns its lifetime; Ryuk
// reaps it after the run.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	cfg := config.RedisConfig{
		URL:         url,
		PoolSize:    20,
		SequenceKey: "cityledger:test:proposition:seq",
	}
	client, err := redis.New(ctx, cfg)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to redis: %v", err)
	}

	return &RedisContainer{Container: container, Config: cfg, Client: client}
}

// Reset drops every key so each test starts from an empty sequence.
func (r *RedisContainer) Reset(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
