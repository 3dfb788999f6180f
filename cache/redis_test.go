package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopCache_AlwaysMisses(t *testing.T) {
	var c Cache = NopCache{}
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, KeyBackendHealth, true, time.Minute))

	var healthy bool
	hit, err := c.GetJSON(ctx, KeyBackendHealth, &healthy)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Delete(ctx, KeyBackendHealth))
	assert.NoError(t, c.Close())
}

func TestNewRedisCache_UnreachableFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// port 1 is reserved and never has a Redis server behind it
	_, err := NewRedisCache(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
