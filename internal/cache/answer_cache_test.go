package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/rag"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redisv9.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleAnswer() rag.Answer {
	return rag.Answer{
		Answer:     "Refunds within 30 days.",
		Sources:    []rag.Source{{Filename: "policy.pdf", Score: 0.91}},
		ChunkCount: 1,
	}
}

func TestAnswerCacheMissThenHit(t *testing.T) {
	_, client := setupRedis(t)
	c := NewAnswerCache(client)
	ctx := context.Background()
	fp := rag.Fingerprint("u1", "q", "p")

	got, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, fp, sampleAnswer(), time.Hour))

	got, ok, err = c.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleAnswer(), got.Answer)
	assert.Equal(t, fp, got.Fingerprint)
}

func TestAnswerCacheTTL(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewAnswerCache(client)
	ctx := context.Background()
	fp := rag.Fingerprint("u1", "q", "p")

	require.NoError(t, c.Set(ctx, fp, sampleAnswer(), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(answerKey(fp)))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnswerCacheIgnoresExpiredPayload(t *testing.T) {
	_, client := setupRedis(t)
	c := NewAnswerCache(client)
	ctx := context.Background()
	fp := rag.Fingerprint("u1", "q", "p")

	require.NoError(t, c.Set(ctx, fp, sampleAnswer(), time.Minute))
	c.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnswerCacheCorruptPayload(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewAnswerCache(client)
	fp := rag.Fingerprint("u1", "q", "p")
	require.NoError(t, mr.Set(answerKey(fp), "{not json"))

	_, ok, err := c.Get(context.Background(), fp)
	assert.False(t, ok)
	var cacheErr *rag.CacheError
	assert.ErrorAs(t, err, &cacheErr)
	assert.False(t, mr.Exists(answerKey(fp)))
}

func TestAnswerCacheUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewAnswerCache(client)
	mr.Close()

	_, ok, err := c.Get(context.Background(), "x")
	assert.False(t, ok)
	var cacheErr *rag.CacheError
	assert.ErrorAs(t, err, &cacheErr)
	assert.ErrorAs(t, c.Set(context.Background(), "x", sampleAnswer(), time.Minute), &cacheErr)
}

func TestAnswerCacheInvalidateTenant(t *testing.T) {
	_, client := setupRedis(t)
	c := NewAnswerCache(client)
	ctx := context.Background()

	var mine []string
	for _, q := range []string{"a", "b", "c"} {
		fp := rag.Fingerprint("u1", q, "p")
		mine = append(mine, fp)
		require.NoError(t, c.Set(ctx, fp, sampleAnswer(), time.Hour))
	}
	other := rag.Fingerprint("u2", "a", "p")
	require.NoError(t, c.Set(ctx, other, sampleAnswer(), time.Hour))

	require.NoError(t, c.InvalidateTenant(ctx, "u1"))

	for _, fp := range mine {
		_, ok, err := c.Get(ctx, fp)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, ok, err := c.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnswerCacheEpoch(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewAnswerCache(client)
	ctx := context.Background()

	epoch, err := c.Epoch(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, epoch)

	require.NoError(t, c.InvalidateTenant(ctx, "u1"))
	require.NoError(t, c.InvalidateTenant(ctx, "u1"))
	epoch, err = c.Epoch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), epoch)

	other, err := c.Epoch(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, other)

	// An answer stored under an old epoch stays unreachable.
	stale := rag.WithEpoch(rag.Fingerprint("u1", "q", "p"), 1)
	require.NoError(t, c.Set(ctx, stale, sampleAnswer(), time.Hour))
	_, ok, err := c.Get(ctx, rag.WithEpoch(rag.Fingerprint("u1", "q", "p"), epoch))
	require.NoError(t, err)
	assert.False(t, ok)

	mr.Close()
	_, err = c.Epoch(ctx, "u1")
	var cacheErr *rag.CacheError
	assert.ErrorAs(t, err, &cacheErr)
	assert.ErrorAs(t, c.InvalidateTenant(ctx, "u1"), &cacheErr)
}
