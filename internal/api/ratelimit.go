package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DeleteRateLimiter is a token bucket shared by every destructive route.
// It starts full with capacity tokens and regains one token per refill.
type DeleteRateLimiter struct {
	mu       sync.Mutex
	capacity int
	refill   time.Duration
	tokens   int
	last     time.Time
	now      func() time.Time
}

// NewDeleteRateLimiter creates a limiter allowing bursts of capacity requests
// and a sustained rate of one request per refill.
func NewDeleteRateLimiter(capacity int, refill time.Duration) *DeleteRateLimiter {
	return newDeleteRateLimiter(capacity, refill, time.Now)
}

func newDeleteRateLimiter(capacity int, refill time.Duration, now func() time.Time) *DeleteRateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &DeleteRateLimiter{
		capacity: capacity,
		refill:   refill,
		tokens:   capacity,
		last:     now(),
		now:      now,
	}
}

// Allow takes a token if one is available.
func (l *DeleteRateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.refill > 0 {
		if gained := int(now.Sub(l.last) / l.refill); gained > 0 {
			l.tokens = min(l.capacity, l.tokens+gained)
			l.last = l.last.Add(time.Duration(gained) * l.refill)
		}
	}
	if l.tokens == 0 {
		return false
	}
	l.tokens--
	return true
}

// Middleware rejects requests with 429 once the bucket is empty.
func (l *DeleteRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			retry := max(1, int(l.refill.Round(time.Second)/time.Second))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			WriteProblem(w, r, http.StatusTooManyRequests, "Too many delete requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
