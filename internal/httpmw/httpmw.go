// Package httpmw implements the loopback-only HTTP surface's cross-cutting
// concerns: CORS, security headers, body-size limiting, a global IP rate
// limit, and bearer-token admin auth, all composed through the usual
// Handler(next http.Handler) http.Handler idiom.
package httpmw

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// CORS restricts cross-origin requests to loopback UI origins.
type CORS struct {
	allowedOrigins []string
}

// NewCORS builds a CORS middleware that allows only the given origins
// (typically http://127.0.0.1:* and http://localhost:* variants).
func NewCORS(allowedOrigins []string) *CORS {
	return &CORS{allowedOrigins: allowedOrigins}
}

// Handler returns the CORS middleware handler.
func (m *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && m.isAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORS) isAllowed(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return false
	}
	if len(m.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range m.allowedOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

// SecurityHeaders adds the standard hardening headers to every response.
type SecurityHeaders struct {
	headers map[string]string
}

// DefaultSecurityHeaders returns the worker's fixed header set.
func DefaultSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
}

// NewSecurityHeaders builds a SecurityHeaders middleware from headers, or
// DefaultSecurityHeaders when nil.
func NewSecurityHeaders(headers map[string]string) *SecurityHeaders {
	if headers == nil {
		headers = DefaultSecurityHeaders()
	}
	return &SecurityHeaders{headers: headers}
}

// Handler returns the security-headers middleware handler.
func (m *SecurityHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range m.headers {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// BodyLimit caps request bodies via http.MaxBytesReader.
type BodyLimit struct {
	maxBytes int64
}

// NewBodyLimit builds a BodyLimit middleware.
func NewBodyLimit(maxBytes int64) *BodyLimit {
	return &BodyLimit{maxBytes: maxBytes}
}

// Handler returns the body-limit middleware handler.
func (m *BodyLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.maxBytes > 0 {
			if r.ContentLength > m.maxBytes {
				WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiter enforces a fixed requests-per-window budget per client IP,
// one golang.org/x/time/rate limiter per key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewRateLimiter builds a RateLimiter allowing limit requests per window,
// per client IP, with burst headroom equal to limit.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	perSecond := float64(limit) / window.Seconds()
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perSecond),
		burst:    limit,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.r, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler returns the rate-limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.limiterFor(key).Allow() {
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerAuth requires administrative routes to carry the worker's
// per-startup bearer token.
type BearerAuth struct {
	token string
}

// NewBearerAuth builds a BearerAuth middleware checking against token.
func NewBearerAuth(token string) *BearerAuth {
	return &BearerAuth{token: token}
}

// Handler returns the bearer-auth middleware handler.
func (m *BearerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		want := "Bearer " + m.token
		if m.token == "" || !strings.EqualFold(strings.TrimSpace(header), want) && header != want {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid worker token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoopbackOnly rejects any request whose remote address isn't loopback,
// a backstop behind the listener's own bind address.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			WriteJSON(w, http.StatusForbidden, map[string]string{"error": "loopback clients only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Port number helper used by CORS default allow-list construction.
func loopbackOrigins(port int) []string {
	p := strconv.Itoa(port)
	return []string{"http://127.0.0.1:" + p, "http://localhost:" + p}
}
