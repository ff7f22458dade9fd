package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds limiter memory; the least recently seen client is evicted first.
const maxTrackedClients = 10_000

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func newIPRateLimiter(perMinute int) (*ipRateLimiter, error) {
	if perMinute <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", perMinute)
	}
	limiters, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter cache: %w", err)
	}
	return &ipRateLimiter{
		limiters: limiters,
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}, nil
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(ip, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// RateLimitCheckout rejects clients that open checkout sessions faster than configured.
func (h *Handlers) RateLimitCheckout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := h.clientIP(r)
		if !h.checkoutLimiter.Allow(ip) {
			h.loggerFromContext(r.Context()).Warn("checkout rate limit exceeded", "remote_ip", ip)
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			writeError(r.Context(), w, http.StatusTooManyRequests, "too many checkout attempts, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}
