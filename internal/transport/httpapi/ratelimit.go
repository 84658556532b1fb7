package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
}

var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 5,
	Burst:             10,
	CleanupInterval:   5 * time.Minute,
}

type limiterEntry struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *limiterEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *limiterEntry) seenBefore(t time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen.Before(t)
}

// IPRateLimiter is a token bucket per client IP. Analysis requests are
// expensive, so every route except health and metrics goes through it.
type IPRateLimiter struct {
	limiters sync.Map // ip -> *limiterEntry
	config   RateLimitConfig

	// OnReject, when set, is called for every rejected request.
	OnReject func(ip string)
}

// NewIPRateLimiter starts no goroutines; call Run to evict idle clients.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimitConfig.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimitConfig.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	return &IPRateLimiter{config: cfg}
}

func (rl *IPRateLimiter) limiter(ip string) *rate.Limiter {
	now := time.Now()
	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*limiterEntry)
		e.touch(now)
		return e.limiter
	}
	e := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
		lastSeen: now,
	}
	actual, _ := rl.limiters.LoadOrStore(ip, e)
	return actual.(*limiterEntry).limiter
}

// Run evicts limiters idle for two cleanup intervals until ctx is done.
func (rl *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-2 * rl.config.CleanupInterval))
		}
	}
}

func (rl *IPRateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		if value.(*limiterEntry).seenBefore(cutoff) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

func (rl *IPRateLimiter) Allow(ip string) bool {
	return rl.limiter(ip).Allow()
}

func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !rl.Allow(ip) {
			if rl.OnReject != nil {
				rl.OnReject(ip)
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers X-Forwarded-For, then X-Real-IP, then the peer address.
// Both headers are client-controlled unless a trusted proxy sets them.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
