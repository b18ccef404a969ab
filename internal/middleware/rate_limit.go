package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/viewisland/internal/logging"
	"go.uber.org/zap"
)

// Limiter 判断 key 在当前窗口内是否还允许请求。
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// rateLimitScript 以原子方式实现滑动窗口计数。
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('PEXPIRE', key, window + 1000)
    return {1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = now + window
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, reset_at}
end
`)

// RedisLimiter 使用 Redis 有序集合做滑动窗口限流，Redis 不可用时退回内存限流。
type RedisLimiter struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	fallback *MemoryLimiter
	now      func() time.Time
}

// NewRedisLimiter creates a limiter allowing limit hits per window for each key.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "viewisland:ratelimit:",
		fallback: NewMemoryLimiter(limit, window),
		now:      time.Now,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.client == nil {
		return l.fallback.Allow(ctx, key)
	}

	now := l.now().UnixMilli()
	result, err := rateLimitScript.Run(ctx, l.client, []string{l.prefix + key},
		l.limit, l.window.Milliseconds(), now,
	).Int64Slice()
	if err != nil || len(result) != 2 {
		logging.L().Warn("redis rate limiter unavailable, using in-memory fallback", zap.Error(err))
		return l.fallback.Allow(ctx, key)
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, retryAfterFrom(time.Duration(result[1]-now) * time.Millisecond), nil
}

// MemoryLimiter 是进程内的滑动窗口限流，多实例部署时各自计数。
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
	lastGC time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.gc(now, cutoff)

	recent := trimBefore(l.hits[key], cutoff)
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false, retryAfterFrom(recent[0].Add(l.window).Sub(now)), nil
	}
	l.hits[key] = append(recent, now)
	return true, 0, nil
}

// gc 每个窗口清理一次过期 key，防止内存无限增长。
func (l *MemoryLimiter) gc(now, cutoff time.Time) {
	if now.Sub(l.lastGC) < l.window {
		return
	}
	l.lastGC = now
	for key, hits := range l.hits {
		if recent := trimBefore(hits, cutoff); len(recent) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = recent
		}
	}
}

func trimBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func retryAfterFrom(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}

// RateLimit 按 keyFn 计算的 key 限流，超限返回 429 并调用 onLimited。
// 限流器自身出错时放行请求。
func RateLimit(limiter Limiter, keyFn func(*gin.Context) string, onLimited func(*gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			if onLimited != nil {
				onLimited(c)
			}
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please slow down"})
			return
		}
		c.Next()
	}
}

// ViewKey 以客户端 IP 与路由参数 param（文章 id）作为浏览限流 key。
func ViewKey(param string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return fmt.Sprintf("view:%s:%s", c.ClientIP(), c.Param(param))
	}
}
