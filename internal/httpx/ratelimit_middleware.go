package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc derives the client key a request is counted against.
type KeyFunc func(r *http.Request) string

type RateLimitOptions struct {
	// PerMinute is how many requests a client may make in one window.
	PerMinute int
	// Window defaults to one minute.
	Window             time.Duration
	TrustXForwardedFor bool
	// IdleTTL is how long an unused client limiter is kept. Defaults to 5m.
	IdleTTL time.Duration
	// Stats, when set, receives one event per decision.
	Stats StatsStore
}

// clientWindow counts one client's requests in the current fixed window.
type clientWindow struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// RateLimitMiddleware keeps one fixed window counter per client key. The
// window opens on a client's first request and resets once it has lasted
// a full window, so no client gets more than limit requests inside it.
type RateLimitMiddleware struct {
	limiters map[string]*clientWindow
	mu       sync.Mutex
	limit    int
	window   time.Duration
	idleTTL  time.Duration
	keyFn    KeyFunc
	stats    StatsStore
	now      func() time.Time
}

func NewRateLimitMiddleware(opts RateLimitOptions) *RateLimitMiddleware {
	window := opts.Window
	if window <= 0 {
		window = time.Minute
	}
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}

	return &RateLimitMiddleware{
		limiters: make(map[string]*clientWindow),
		limit:    max(opts.PerMinute, 1),
		window:   window,
		idleTTL:  idleTTL,
		keyFn:    ClientAddrKeyFunc(opts.TrustXForwardedFor),
		stats:    opts.Stats,
		now:      time.Now,
	}
}

// ClientAddrKeyFunc keys requests by remote host, or by the first
// X-Forwarded-For hop when trustXFF is set.
func ClientAddrKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// StartJanitor drops idle client limiters until ctx is cancelled.
func (rl *RateLimitMiddleware) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(rl.idleTTL)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(rl.now())
			}
		}
	}()
}

func (rl *RateLimitMiddleware) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, l := range rl.limiters {
		if now.Sub(l.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
}

// allow counts a request for key. When the window is used up it returns
// how long until it resets.
func (rl *RateLimitMiddleware) allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.limiters[key]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &clientWindow{start: now}
		rl.limiters[key] = w
	}
	w.lastSeen = now

	if w.count >= rl.limit {
		return false, w.start.Add(rl.window).Sub(now)
	}
	w.count++
	return true, 0
}

func (rl *RateLimitMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.keyFn(r)
		allowed, retryAfter := rl.allow(key)

		if rl.stats != nil {
			ev := StatsEvent{
				Key:     key,
				Allowed: allowed,
				Method:  r.Method,
				Path:    r.URL.Path,
				At:      rl.now(),
			}
			if err := rl.stats.Record(r.Context(), ev); err != nil {
				slog.WarnContext(r.Context(), "record rate limit stats", slog.String("error", err.Error()))
			}
		}

		if !allowed {
			secs := max(int(math.Ceil(retryAfter.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			JSONError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
