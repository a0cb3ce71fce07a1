package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, counts what is left and records the new
// hit only when the count is under the limit. Scores are unix milliseconds.
var slidingWindow = redisv9.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, count, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter counts requests per tenant and action in a Redis sorted set
// over a sliding window.
type RateLimiter struct {
	client *redisv9.Client
	now    func() time.Time
}

func NewRateLimiter(client *redisv9.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one request of action by tenantID if it fits in limit per
// window. When Redis fails the request is allowed and the error returned for
// logging.
func (l *RateLimiter) Allow(ctx context.Context, tenantID, action string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf("ratelimit:%s:%s", action, tenantID)
	now := l.now().UnixMilli()

	res, err := slidingWindow.Run(ctx, l.client, []string{key},
		now, window.Milliseconds(), limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true, Limit: limit}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{Allowed: true, Limit: limit}, fmt.Errorf("rate limit check returned %d values", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      limit,
		Remaining:  max(limit-int(res[1]), 0),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
