package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max is the request budget per Window for reads.
	Max int
	// WriteMax is the budget for state-changing requests (order placement,
	// payment confirmation). Zero means Max.
	WriteMax int
	Window   time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Now defaults to time.Now.
	Now func() time.Time
}

// window is a sliding window counter: the previous fixed window's count is
// weighted by how much of it still overlaps the sliding window.
type window struct {
	start time.Time
	prev  float64
	curr  float64
}

func (w *window) take(now time.Time, size time.Duration, limit int) (remaining int, reset time.Time, ok bool) {
	if elapsed := now.Sub(w.start); elapsed >= size {
		w.prev = w.curr
		if elapsed >= 2*size {
			w.prev = 0
		}
		w.curr = 0
		w.start = now.Truncate(size)
	}
	reset = w.start.Add(size)

	overlap := max(0, 1-now.Sub(w.start).Seconds()/size.Seconds())
	used := w.prev*overlap + w.curr
	if used >= float64(limit) {
		return 0, reset, false
	}
	w.curr++
	return max(0, int(float64(limit)-used-1)), reset, true
}

type limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.WriteMax <= 0 {
		cfg.WriteMax = cfg.Max
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &limiter{cfg: cfg, windows: make(map[string]*window)}
}

func (l *limiter) take(key string, limit int, now time.Time) (int, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now.Truncate(l.cfg.Window)}
		l.windows[key] = w
	}
	return w.take(now, l.cfg.Window, limit)
}

// sweep drops clients idle for two windows; their counters would be zero.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limit := l.cfg.KeyFunc(r), l.cfg.Max
		if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
			key, limit = "write:"+key, l.cfg.WriteMax
		}
		now := l.cfg.Now()
		remaining, reset, ok := l.take(key, limit, now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(max(0, reset.Sub(now).Seconds())))))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit limits requests per client. Reads and writes have separate
// budgets. Rejected requests get 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle clients
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep(l.cfg.Now())
			}
		}
	}()
	return l.middleware
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
