package rpc

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tipchain/config"
)

const visitorTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address. A zero
// RequestsPerMinute disables limiting.
type rateLimiter struct {
	cfg      config.RateLimit
	mu       sync.Mutex
	visitors map[string]*visitor
	swept    time.Time
	clockNow func() time.Time
}

func newRateLimiter(cfg config.RateLimit) *rateLimiter {
	return &rateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

func (l *rateLimiter) middleware(onThrottle func(reason string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.cfg.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if !l.allow(clientID(r)) {
				if onThrottle != nil {
					onThrottle("rate_limit")
				}
				w.Header().Set("Content-Type", "application/json")
				writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *rateLimiter) allow(id string) bool {
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > time.Minute {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, key)
			}
		}
		l.swept = now
	}
	v, ok := l.visitors[id]
	if !ok {
		burst := l.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60.0), burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// clientID keys limits on the connection's remote address. Forwarding
// headers are not trusted.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
