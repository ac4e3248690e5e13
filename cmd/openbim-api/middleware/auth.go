// Package middleware provides HTTP middleware for the openBIM service API.
package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"sync"
	"time"
)

// APIKeyHeader carries the client's key on every authenticated request.
const APIKeyHeader = "X-API-Key"

// APIKeyConfig holds API-key authentication configuration.
type APIKeyConfig struct {
	Enabled bool
	Keys    []string
	// MaxAttempts is the number of failed attempts one client IP may make
	// before being rejected with 429 until the window resets.
	MaxAttempts  int
	AttemptReset time.Duration
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

type attemptLimiter struct {
	mu       sync.Mutex
	attempts map[string]attemptWindow
	max      int
	reset    time.Duration
}

func newAttemptLimiter(max int, reset time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts: make(map[string]attemptWindow),
		max:      max,
		reset:    reset,
	}
}

// blocked reports whether the client has exhausted its failure budget.
func (l *attemptLimiter) blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	win, ok := l.attempts[ip]
	if !ok || time.Now().After(win.resetAt) {
		return false
	}
	return win.count >= l.max
}

func (l *attemptLimiter) fail(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	win, ok := l.attempts[ip]
	if !ok || now.After(win.resetAt) {
		win = attemptWindow{resetAt: now.Add(l.reset)}
	}
	win.count++
	l.attempts[ip] = win
}

func (l *attemptLimiter) succeed(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// APIKey returns middleware enforcing X-API-Key authentication. With an
// empty key set or Enabled false the middleware is a pass-through, so
// local development needs no keys. Failed attempts are counted per client
// IP (chi's RealIP runs earlier in the chain) and throttled.
func APIKey(cfg APIKeyConfig) func(http.Handler) http.Handler {
	limiter := newAttemptLimiter(cfg.MaxAttempts, cfg.AttemptReset)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || len(cfg.Keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if limiter.blocked(ip) {
				http.Error(w, `{"error": "too many failed authentication attempts"}`, http.StatusTooManyRequests)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			if key == "" || !keyMatches(key, cfg.Keys) {
				limiter.fail(ip)
				http.Error(w, `{"error": "invalid or missing API key"}`, http.StatusUnauthorized)
				return
			}

			limiter.succeed(ip)
			next.ServeHTTP(w, r)
		})
	}
}

func keyMatches(candidate string, keys []string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	// RealIP middleware rewrites RemoteAddr from X-Forwarded-For when
	// present; RemoteAddr may or may not carry a port at this point.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Non-browser clients send no Origin; nothing to allow.
			allowed := false
			if origin != "" {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
