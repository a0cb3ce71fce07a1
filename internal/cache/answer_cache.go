package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	redisv9 "github.com/redis/go-redis/v9"

	"docqa/internal/rag"
)

const (
	answerKeyPrefix     = "rag:answer:"
	epochKeyPrefix = "rag:epoch:"
	scanBatch       = 200
)

// AnswerCache stores generated answers in Redis under their request
// fingerprint.
type AnswerCache struct {
	client *redisv9.Client
	now    func() time.Time
}

func NewAnswerCache(client *redisv9.Client) *AnswerCache {
	return &AnswerCache{client: client, now: time.Now}
}

// Get returns the cached answer for fingerprint. A miss is (nil, false, nil).
func (c *AnswerCache) Get(ctx context.Context, fingerprint string) (*rag.CachedAnswer, bool, error) {
	raw, err := c.client.Get(ctx, answerKey(fingerprint)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &rag.CacheError{Op: "get", Err: fmt.Errorf("redis get answer failed: %w", err)}
	}

	var cached rag.CachedAnswer
	if err := sonic.Unmarshal(raw, &cached); err != nil {
		_ = c.client.Del(ctx, answerKey(fingerprint)).Err()
		return nil, false, &rag.CacheError{Op: "get", Err: fmt.Errorf("decode cached answer failed: %w", err)}
	}
	if cached.Expired(c.now()) {
		return nil, false, nil
	}
	return &cached, true, nil
}

// Set stores answer for ttl.
func (c *AnswerCache) Set(ctx context.Context, fingerprint string, answer rag.Answer, ttl time.Duration) error {
	cached := rag.CachedAnswer{Fingerprint: fingerprint, Answer: answer}
	if ttl > 0 {
		cached.ExpiresAt = c.now().Add(ttl)
	}
	payload, err := sonic.Marshal(cached)
	if err != nil {
		return &rag.CacheError{Op: "set", Err: fmt.Errorf("encode answer failed: %w", err)}
	}
	if err := c.client.Set(ctx, answerKey(fingerprint), payload, ttl).Err(); err != nil {
		return &rag.CacheError{Op: "set", Err: fmt.Errorf("redis set answer failed: %w", err)}
	}
	return nil
}

// Epoch returns the tenant's cache epoch. Answers are keyed by the
// epoch read before retrieval, so an answer computed before an
// invalidation lands under a key nobody reads any more.
func (c *AnswerCache) Epoch(ctx context.Context, tenantID string) (int64, error) {
	epoch, err := c.client.Get(ctx, epochKey(tenantID)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, &rag.CacheError{Op: "epoch", Err: fmt.Errorf("redis get epoch failed: %w", err)}
	}
	return epoch, nil
}

// InvalidateTenant bumps the tenant's epoch and drops its cached
// answers.
func (c *AnswerCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	if err := c.client.Incr(ctx, epochKey(tenantID)).Err(); err != nil {
		return &rag.CacheError{Op: "invalidate", Err: fmt.Errorf("redis bump epoch failed: %w", err)}
	}

	pattern := answerKeyPrefix + rag.TenantTag(tenantID) + ":*"
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	keys := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatch {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return &rag.CacheError{Op: "invalidate", Err: fmt.Errorf("redis delete answers failed: %w", err)}
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return &rag.CacheError{Op: "invalidate", Err: fmt.Errorf("redis scan answers failed: %w", err)}
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return &rag.CacheError{Op: "invalidate", Err: fmt.Errorf("redis delete answers failed: %w", err)}
		}
	}
	return nil
}

func epochKey(tenantID string) string {
	return epochKeyPrefix + rag.TenantTag(tenantID)
}

func answerKey(fingerprint string) string {
	return answerKeyPrefix + fingerprint
}
