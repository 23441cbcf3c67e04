// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter keyed per
// client. Every question and upload costs the indexer real work, so the
// limiter protects the upstream as much as this process.
//
// Features:
//   - Per-key buckets built on golang.org/x/time/rate
//   - Keys from the declared X-Client-ID, falling back to the remote IP
//   - Opportunistic eviction of idle buckets to bound memory
//   - Idempotent replays bypass the limiter (see IdempotencyValidator)
//
// Notes:
//   - Limits are per process. Sessions are per process too, so a client
//     pinned to one instance sees consistent limits.
//   - This is abuse and cost control, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByClientOrIP keys buckets by declared client ID ("client:<id>") and
// falls back to the remote address ("ip:<addr>").
func KeyByClientOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := clientIDFromCtx(c); id != "" {
			return "client:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Idle buckets are evicted
// opportunistically. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst (coerced to >= 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key, creating it if absent. Every 5000
// lookups it first evicts buckets idle for at least ttl, so a stale bucket is
// dropped even when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns a Gin middleware that enforces per-key token-bucket limits.
//
// Behavior:
//   - If IsRateBypass(c) is true (idempotent replay), limiting is skipped.
//   - Otherwise one token is reserved from the caller's bucket.
//   - When no token is available the reservation is cancelled and the
//     request is rejected with 429 too_many_requests and a Retry-After header
//     holding the whole seconds until a token frees up (clamped to 1..60).
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.getVisitor(rl.keyFn(c))
		res := lim.Reserve()
		if res.OK() && res.Delay() == 0 {
			c.Next()
			return
		}
		wait := res.Delay()
		res.Cancel()

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	switch {
	case s < 1:
		return 1
	case s > 60:
		return 60
	}
	return s
}
