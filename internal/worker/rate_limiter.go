package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for the per-domain daily send limit. Check and increment are
// one atomic step; a GET then INCR pair would race between workers.
const domainDailyLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// DomainLimiter caps outbound sends per recipient domain per day. A nil
// Redis client disables limiting entirely; that degradation is logged once
// at construction and every send is then allowed.
type DomainLimiter struct {
	redis  *redis.Client
	script *redis.Script
	limit  int
}

// NewDomainLimiter creates the limiter. limitPerDay <= 0 also disables it.
func NewDomainLimiter(client *redis.Client, limitPerDay int) *DomainLimiter {
	if client == nil || limitPerDay <= 0 {
		log.Printf("[RateLimiter] Redis not configured; per-domain send limit disabled")
		return &DomainLimiter{limit: limitPerDay}
	}
	return &DomainLimiter{
		redis:  client,
		script: redis.NewScript(domainDailyLuaScript),
		limit:  limitPerDay,
	}
}

// NewDomainLimiterFromURL connects to Redis and verifies it. A bad URL is
// an error; the caller decides whether to run degraded instead.
func NewDomainLimiterFromURL(redisURL string, limitPerDay int) (*DomainLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewDomainLimiter(client, limitPerDay), nil
}

// Allow atomically consumes one send slot for the domain today. Redis
// errors allow the send; availability beats strictness for outbound caps.
func (l *DomainLimiter) Allow(ctx context.Context, domain string) bool {
	if l.redis == nil || l.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:domain:%s:%s", domain, time.Now().UTC().Format("2006-01-02"))
	result, err := l.script.Run(ctx, l.redis,
		[]string{key},
		1,
		l.limit,
		90000, // 25h, outlives the day bucket
	).Slice()
	if err != nil {
		log.Printf("[RateLimiter] Domain limit check error for %s: %v", domain, err)
		return true
	}

	allowed, _ := result[0].(int64)
	if allowed == 0 {
		log.Printf("[RateLimiter] Domain %s hit daily send limit (%d)", domain, l.limit)
		return false
	}
	return true
}

// Close closes the Redis connection when one was configured.
func (l *DomainLimiter) Close() error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Close()
}
