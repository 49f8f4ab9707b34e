package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryanwahyu/codesight/internal/domain/auth"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key (user id, or client IP for
// anonymous callers).
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewRateLimiter allows perMinute events per key with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now and, if not, how long to wait.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	now := rl.now()
	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[key] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

// RateLimitError is returned by Check when a key is over its budget.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string { return "rate limit exceeded, please try again later" }

// RetryAfter is Wait in whole seconds, rounded up.
func (e *RateLimitError) RetryAfter() int { return int(math.Ceil(e.Wait.Seconds())) }

// Check is Allow as an error, for callers outside the HTTP middleware chain.
func (rl *RateLimiter) Check(key string) error {
	if ok, wait := rl.Allow(key); !ok {
		return &RateLimitError{Wait: wait}
	}
	return nil
}

// UserKey is the bucket key of an authenticated user.
func UserKey(userID string) string { return "user:" + userID }

// Sweep drops buckets idle for longer than the idle window.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cut := rl.now().Add(-rl.idle)
	for k, e := range rl.entries {
		if e.lastSeen.Before(cut) {
			delete(rl.entries, k)
		}
	}
}

// Len is the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Middleware rejects callers over their budget with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rle *RateLimitError
		if err := rl.Check(rateKey(r)); errors.As(err, &rle) {
			w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfter()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"` + rle.Error() + `"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return UserKey(p.UserID)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
