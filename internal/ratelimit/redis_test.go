package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis starts a Redis container or skips the test when no container
// runtime is available.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	l := NewRedisLimiterWithClient(client, 0.001, 3)

	for i := range 3 {
		ok, err := l.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i+1)
	}
	ok, err := l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")

	ok, err = l.Allow(ctx, "ip:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok, "independent key")

	// Close does not close a client the limiter did not create.
	require.NoError(t, l.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestRedisLimiter_Refills(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	l := NewRedisLimiterWithClient(client, 20, 1)

	ok, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(100 * time.Millisecond)
	ok, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_UnreachableReturnsError(t *testing.T) {
	l, err := NewRedisLimiter("redis://127.0.0.1:1/0", 1, 1)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = l.Allow(ctx, "k")
	assert.Error(t, err)
}

func TestNewRedisLimiter_BadURL(t *testing.T) {
	_, err := NewRedisLimiter("not a url", 1, 1)
	assert.Error(t, err)
}
