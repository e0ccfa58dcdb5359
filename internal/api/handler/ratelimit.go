package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/captals/primechain/internal/auth"
)

const (
	limiterIdleTTL = 10 * time.Minute
	limiterSweep   = 5 * time.Minute
)

// keyedLimiter holds one token bucket per key. Buckets idle for
// limiterIdleTTL are dropped by sweep.
type keyedLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(ctx context.Context, rps float64, burst int) *keyedLimiter {
	k := &keyedLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	go func() {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
	return k
}

// allow spends one token from key's bucket.
func (k *keyedLimiter) allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	k.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (k *keyedLimiter) sweep() {
	cutoff := k.now().Add(-limiterIdleTTL)
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, b := range k.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(k.buckets, key)
		}
	}
}

// retryAfter is the whole number of seconds until one token refills.
func (k *keyedLimiter) retryAfter() string {
	secs := 1.0
	if k.rps > 0 {
		secs = math.Ceil(1 / float64(k.rps))
	}
	return strconv.Itoa(int(math.Max(secs, 1)))
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size. Idle entries are dropped until ctx is cancelled.
func RateLimiter(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	k := newKeyedLimiter(ctx, rps, burst)
	return func(c *gin.Context) {
		if !k.allow(c.ClientIP()) {
			c.Header("Retry-After", k.retryAfter())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// SubmitterRateLimiter limits block submissions per submitter. It must run
// after auth.RequireScope: the key is the token subject, or the client IP
// when submitter auth is disabled. Throttled appends count as rejections
// with reason "rate_limited".
func SubmitterRateLimiter(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	k := newKeyedLimiter(ctx, rps, burst)
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if claims := auth.ClaimsFromCtx(c); claims != nil {
			key = "sub:" + claims.Subject
		}
		if !k.allow(key) {
			RecordAppendRejected("rate_limited")
			c.Header("Retry-After", k.retryAfter())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "submission rate exceeded",
			})
			return
		}
		c.Next()
	}
}
