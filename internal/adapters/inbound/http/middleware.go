package http

import (
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

func asDomainError(err error) *entity.Error {
	var de *entity.Error
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// slogFormatter feeds chi's RequestLogger and Recoverer. Requests are logged at debug;
// panics at error with the stack, so panic values never reach the response.
type slogFormatter struct {
	logger *slog.Logger
}

func (f *slogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &slogEntry{
		logger: f.logger.With(
			"requestId", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path),
	}
}

type slogEntry struct {
	logger *slog.Logger
}

func (e *slogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	e.logger.Debug("request served", "status", status, "bytes", bytes, "duration", elapsed)
}

func (e *slogEntry) Panic(v any, stack []byte) {
	e.logger.Error("panic serving request", "panic", v, "stack", string(stack))
}

// cors allows simple cross-origin GETs and answers preflight requests.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter holds one token bucket per client IP. Each bucket starts full with
// requests tokens and refills at requests per window.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(requests int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
		window:   window,
		now:      time.Now,
	}
}

// reserve takes a token for ip. When none is available it returns false and how long
// until one will be.
func (l *ipRateLimiter) reserve(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := v.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// sweep drops visitors idle for a full window; their buckets would be full again anyway.
func (l *ipRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.window {
			delete(l.visitors, ip)
		}
	}
	l.lastSweep = now
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := h.limiter.reserve(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			h.respondError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr, which middleware.RealIP has already
// replaced with the forwarded client address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
