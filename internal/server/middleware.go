package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	clients sync.Map // ip -> *clientEntry
	rps     rate.Limit
	burst   int
	done    chan struct{}
	once    sync.Once
}

type clientEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		done:  make(chan struct{}),
	}
}

func (c *clientLimiter) allow(ip string, now time.Time) bool {
	v, _ := c.clients.LoadOrStore(ip, &clientEntry{limiter: rate.NewLimiter(c.rps, c.burst)})
	entry := v.(*clientEntry)

	entry.mu.Lock()
	entry.lastSeen = now
	entry.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// middleware rejects requests over the per-client rate with 429
func (c *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.allow(clientIP(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweep drops clients idle for longer than idle until ctx ends or stop is called
func (c *clientLimiter) sweep(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case now := <-ticker.C:
			c.evictIdle(now, idle)
		}
	}
}

func (c *clientLimiter) evictIdle(now time.Time, idle time.Duration) {
	c.clients.Range(func(key, value any) bool {
		entry := value.(*clientEntry)
		entry.mu.Lock()
		stale := now.Sub(entry.lastSeen) > idle
		entry.mu.Unlock()
		if stale {
			c.clients.Delete(key)
		}
		return true
	})
}

func (c *clientLimiter) stop() {
	c.once.Do(func() { close(c.done) })
}

// clientIP returns the request's remote host. RealIP has already applied forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
