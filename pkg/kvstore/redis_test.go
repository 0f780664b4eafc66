package kvstore

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *Redis {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()}))
	require.NoError(t, store.Ping(ctx))

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestRedis_SetNXAndGet(t *testing.T) {
	store := setupRedis(t)
	ctx := t.Context()

	ok, err := store.SetNX(ctx, "occurrence:rule-1:deal:1:1700000000", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "occurrence:rule-1:deal:1:1700000000", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "deal_value:deal-1", "42000", 0))

	value, found, err := store.Get(ctx, "deal_value:deal-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42000", value)

	require.NoError(t, store.Delete(ctx, "deal_value:deal-1"))

	_, found, err = store.Get(ctx, "deal_value:deal-1")
	require.NoError(t, err)
	assert.False(t, found)
}
