package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	_, client := setupRedis(t)
	l := NewRateLimiter(client)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "u1", "query", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
		now = now.Add(time.Minute)
	}

	d, err := l.Allow(ctx, "u1", "query", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	// The first hit was three minutes ago.
	assert.Equal(t, 57*time.Minute, d.RetryAfter)

	// Other tenants and actions have their own windows.
	d, err = l.Allow(ctx, "u2", "query", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "u1", "upload", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Once the oldest hit leaves the window a slot frees up.
	now = now.Add(58 * time.Minute)
	d, err = l.Allow(ctx, "u1", "query", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr, client := setupRedis(t)
	l := NewRateLimiter(client)
	mr.Close()

	d, err := l.Allow(context.Background(), "u1", "query", 1, time.Hour)
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiterDisabled(t *testing.T) {
	_, client := setupRedis(t)
	d, err := NewRateLimiter(client).Allow(context.Background(), "u1", "query", 0, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
