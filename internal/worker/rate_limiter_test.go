package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T, limit int) (*DomainLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewDomainLimiter(client, limit), mr
}

func TestDomainLimiterAllowsUpToLimit(t *testing.T) {
	limiter, _ := setupLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "glowco.com"), "send %d should be allowed", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "glowco.com"), "fourth send should hit the cap")
}

func TestDomainLimiterCountsDomainsSeparately(t *testing.T) {
	limiter, _ := setupLimiter(t, 1)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "glowco.com"))
	assert.False(t, limiter.Allow(ctx, "glowco.com"))
	assert.True(t, limiter.Allow(ctx, "acme.com"))
}

func TestDomainLimiterSetsDailyExpiry(t *testing.T) {
	limiter, mr := setupLimiter(t, 5)

	require.True(t, limiter.Allow(context.Background(), "glowco.com"))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "ratelimit:domain:glowco.com:")
	assert.Greater(t, mr.TTL(keys[0]).Seconds(), float64(0))
}

func TestDomainLimiterDisabledWithoutRedis(t *testing.T) {
	limiter := NewDomainLimiter(nil, 5)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(ctx, "glowco.com"))
	}
}

func TestDomainLimiterDisabledWithZeroLimit(t *testing.T) {
	limiter, _ := setupLimiter(t, 0)
	assert.True(t, limiter.Allow(context.Background(), "glowco.com"))
}

func TestDomainLimiterAllowsWhenRedisDown(t *testing.T) {
	limiter, mr := setupLimiter(t, 1)
	mr.Close()

	// A dead Redis must not block sending.
	assert.True(t, limiter.Allow(context.Background(), "glowco.com"))
}

func TestDomainLimiterFromURLRejectsBadURL(t *testing.T) {
	_, err := NewDomainLimiterFromURL("not-a-url", 5)
	assert.Error(t, err)
}
