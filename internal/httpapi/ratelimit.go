package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ipRateLimiter rate-limits WebSocket accepts per client IP with a
// token bucket per address. Stale entries are swept periodically.
type ipRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry

	rate  float64
	burst int
	ttl   time.Duration

	stop   chan struct{}
	logger zerolog.Logger
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newIPRateLimiter(r float64, burst int, logger zerolog.Logger) *ipRateLimiter {
	if r <= 0 {
		r = 5
	}
	if burst <= 0 {
		burst = 10
	}
	l := &ipRateLimiter{
		entries: make(map[string]*ipEntry),
		rate:    r,
		burst:   burst,
		ttl:     5 * time.Minute,
		stop:    make(chan struct{}),
		logger:  logger.With().Str("component", "ws_rate_limiter").Logger(),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether an accept from ip may proceed now.
func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.entries[ip] = e
	}
	e.lastAccess = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

func (l *ipRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for ip, e := range l.entries {
				if now.Sub(e.lastAccess) > l.ttl {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *ipRateLimiter) Stop() { close(l.stop) }

// clientIP prefers X-Forwarded-For so limits survive a load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
