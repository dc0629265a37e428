package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// RateLimitInfo is the limiter state reported in the X-RateLimit-* headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter decides whether the client identified by key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter keeps one bucket per key in memory.  Buckets unused
// for longer than idle are dropped on a later call.
type TokenBucketLimiter struct {
	rate  float64
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

// NewTokenBucketLimiter allows rate requests per second with bursts up to
// burst.  A non-positive idle keeps buckets forever.
func NewTokenBucketLimiter(rate float64, burst int, idle time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:      rate,
		burst:     burst,
		idle:      idle,
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
		lastSweep: time.Now(),
	}
}

func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := l.now()
	l.maybeSweep(now)

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[key]; !ok {
			b = &tokenBucket{tokens: float64(l.burst), lastRefill: now}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now

	info := RateLimitInfo{Limit: l.burst}
	if b.tokens >= 1 {
		b.tokens--
		info.Remaining = int(b.tokens)
		info.ResetAt = now
		return true, info
	}
	// Time until one whole token is back.
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	info.ResetAt = now.Add(wait)
	return false, info
}

func (l *TokenBucketLimiter) maybeSweep(now time.Time) {
	if l.idle <= 0 {
		return
	}
	l.mu.RLock()
	due := now.Sub(l.lastSweep) >= l.idle
	l.mu.RUnlock()
	if !due {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.idle)
	for key, b := range l.buckets {
		b.mu.Lock()
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
		b.mu.Unlock()
	}
}

// BucketCount returns the number of tracked clients.
func (l *TokenBucketLimiter) BucketCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// RateLimit throttles requests per client IP.  Rejected requests get 429
// with Retry-After in whole seconds.
func RateLimit(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, info := limiter.Allow("ip:" + c.ClientIP())

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
		if allowed {
			c.Next()
			return
		}

		retry := int(math.Ceil(time.Until(info.ResetAt).Seconds()))
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(errors.HTTPStatusForCode(errors.CodeRateLimited), gin.H{
			"code":       string(errors.CodeRateLimited),
			"message":    errors.DefaultMessageForCode(errors.CodeRateLimited),
			"request_id": GetRequestID(c),
		})
	}
}

//Personal.AI order the ending
