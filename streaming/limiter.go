package streaming

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectLimiter throttles new /stream upgrade attempts per remote
// address, so a reconnect storm from one client can't starve the
// connection cap for everyone else. Per-key token bucket.
type ConnectLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewConnectLimiter allows r reconnect attempts per second per key, with
// burst b.
func NewConnectLimiter(r float64, b int) *ConnectLimiter {
	return &ConnectLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

// Allow reports whether key (typically a remote address) may proceed.
func (l *ConnectLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter.Allow()
}
