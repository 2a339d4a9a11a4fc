package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
)

const (
	defaultLoginsPerMinute = 10
	defaultLoginBurst      = 5

	// limiterIdleTTL is how long an idle client bucket is kept.
	limiterIdleTTL = 10 * time.Minute
)

// loginLimiter is a token bucket per client IP for the login endpoint.
type loginLimiter struct {
	enabled bool
	limit   rate.Limit
	burst   int

	mu      sync.Mutex
	buckets map[string]*limiterBucket
}

type limiterBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(cfg config.RateLimitConfig) *loginLimiter {
	perMinute := cfg.LoginPerMinute
	if perMinute <= 0 {
		perMinute = defaultLoginsPerMinute
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultLoginBurst
	}
	return &loginLimiter{
		enabled: cfg.Enabled,
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		buckets: make(map[string]*limiterBucket),
	}
}

// allow reports whether ip may attempt another login now.
func (l *loginLimiter) allow(ip string, now time.Time) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &limiterBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle for longer than limiterIdleTTL.
func (l *loginLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, ip)
		}
	}
}

func (l *loginLimiter) cleanLoop(ctx context.Context) {
	if !l.enabled {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// rateLimitLogin answers 429 once a client IP exhausts its login budget.
func (s *Server) rateLimitLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip, time.Now()) {
			s.logger.Warn("login rate limited", "source_ip", ip)
			s.record(r, audit.Event{
				Action:  audit.ActionLogin,
				Outcome: audit.OutcomeDenied,
				Details: map[string]any{"reason": "rate_limited"},
			})
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, msgTooManyLogins)
			return
		}
		next.ServeHTTP(w, r)
	})
}
