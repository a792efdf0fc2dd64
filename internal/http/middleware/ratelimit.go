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

// KeyFunc maps a request to its rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByOwnerOrIP keys buckets by the user header, then the session header,
// then the client IP. A patient kiosk shared by anonymous sessions
// therefore gets one bucket per session, not one per kiosk.
func KeyByOwnerOrIP() KeyFunc { return callerKey }

// RateLimiter is an in-process token bucket per caller. It is abuse control
// for the mutating queue routes, not authorization. Buckets idle for idleTTL
// are dropped by a sweep that runs at most once per idleTTL.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows rps sustained requests per caller with bursts of
// burst (minimum 1). A nil key selects KeyByOwnerOrIP.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if key == nil {
		key = callerKey
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
	}
}

func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// Len reports how many caller buckets are live.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler rejects a caller whose bucket is empty with 429
// too_many_requests and a Retry-After of one token's refill time.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	retry := strconv.Itoa(retryAfterSeconds(rl.limit))
	return func(c *gin.Context) {
		if rl.bucketFor(rl.key(c)).Allow() {
			c.Next()
			return
		}
		kind, _ := caller(c)
		rateLimited.WithLabelValues(routeLabel(c), kind).Inc()
		c.Header("Retry-After", retry)
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

// retryAfterSeconds is the refill time of one token, within [1s, 1h].
func retryAfterSeconds(l rate.Limit) int {
	if l <= 0 {
		return 3600
	}
	s := math.Ceil(1 / float64(l))
	return int(math.Min(math.Max(s, 1), 3600))
}
