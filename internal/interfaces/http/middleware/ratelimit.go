package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter decides whether the client identified by key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

// RateLimitInfo is reported through the X-RateLimit-* headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// ClientIP keys requests by the remote host. Run it behind chi's RealIP
// middleware so proxied requests carry the client address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter is an in-process token bucket per key. Idle buckets are
// evicted every cleanupInterval.
type TokenBucketLimiter struct {
	rate            float64
	burst           int
	cleanupInterval time.Duration
	now             func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	stop    chan struct{}
	once    sync.Once
}

// NewTokenBucketLimiter creates a limiter refilling rate tokens per second up
// to burst.
func NewTokenBucketLimiter(rate float64, burst int, cleanupInterval time.Duration) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		rate:            rate,
		burst:           burst,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		buckets:         make(map[string]*tokenBucket),
		stop:            make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop()
	}
	return l
}

func (l *TokenBucketLimiter) bucket(key string, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[key] = b
	}
	return b
}

func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := l.now()
	b := l.bucket(key, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastRefill = now

	info := RateLimitInfo{Limit: l.burst}
	if b.tokens >= 1 {
		b.tokens--
		info.Remaining = int(b.tokens)
		info.ResetAt = now
		return true, info
	}
	info.ResetAt = now.Add(time.Duration((1 - b.tokens) / l.rate * float64(time.Second)))
	return false, info
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

// evictIdle drops buckets untouched for a full cleanup interval.
func (l *TokenBucketLimiter) evictIdle() {
	cutoff := l.now().Add(-l.cleanupInterval)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastRefill.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *TokenBucketLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// BucketCount returns the number of tracked keys.
func (l *TokenBucketLimiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit rejects requests over the limit with 429 and the standard error
// envelope. keyFunc defaults to ClientIP.
func RateLimit(limiter RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, info := limiter.Allow(keyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(time.Until(info.ResetAt).Seconds() + 0.999)
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.Itoa(retry))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":  "error",
				"message": "Too many requests, please retry later.",
			})
		})
	}
}
