// Package ratelimit limits requests per client IP over a sliding window.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/render"
	"github.com/vadimbarashkov/paid-url-shortener/pkg/middleware"
	"github.com/vadimbarashkov/paid-url-shortener/pkg/response"
)

const defaultWindow = time.Minute

// Store decides whether a request for key fits in the window. When it does
// not, the duration tells the caller how long to wait.
type Store interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type Config struct {
	RequestsPerMinute int
	// Window defaults to one minute.
	Window time.Duration
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter keeps the timestamps of recent requests per key in process memory.
type Limiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string][]time.Time
	now     func() time.Time
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   cfg.RequestsPerMinute,
		window:  cfg.Window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
	if l.window <= 0 {
		l.window = defaultWindow
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow records a request for key. Rejected requests are not recorded.
func (l *Limiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	requests := l.recent(key, now)

	if len(requests) >= l.limit {
		if len(requests) == 0 {
			return false, l.window, nil
		}
		l.clients[key] = requests
		return false, requests[0].Add(l.window).Sub(now), nil
	}

	l.clients[key] = append(requests, now)

	return true, 0, nil
}

func (l *Limiter) recent(key string, now time.Time) []time.Time {
	requests := l.clients[key]

	i := 0
	for i < len(requests) && now.Sub(requests[i]) >= l.window {
		i++
	}

	return requests[i:]
}

// Sweep drops keys without requests inside the window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.clients {
		if requests := l.recent(key, now); len(requests) == 0 {
			delete(l.clients, key)
		} else {
			l.clients[key] = requests
		}
	}
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware answers 429 once a client IP exceeds the limit. It expects
// RemoteAddr to hold the client address, as set by chi's RealIP.
// Requests pass when the store fails.
func Middleware(store Store, logger *slog.Logger) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter, err := store.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Warn("rate limit store failed", slog.Any("err", err))
				next.ServeHTTP(w, r)
				return
			}

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))

				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.RateLimitedResponse)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
