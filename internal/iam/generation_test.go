package iam

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGeneration(t *testing.T) *RedisGeneration {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGeneration(client)
}

func TestRedisGenerationStartsAtZero(t *testing.T) {
	gen := newRedisGeneration(t)

	n, err := gen.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisGenerationBumpVisibleToPeers(t *testing.T) {
	srv := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})
	genA := NewRedisGeneration(clientA)
	genB := NewRedisGeneration(clientB)

	n, err := genA.Bump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seen, err := genB.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), seen)
}
