package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rule is a fixed-window limit: at most Requests per Window for one client
// on one route. A zero Requests disables limiting.
type Rule struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces a Rule per client IP and route.
type RateLimiter struct {
	rule    Rule
	logger  *slog.Logger
	exclude []string // path prefixes never limited

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimiter creates a limiter for rule. Paths under excludePrefixes
// bypass it. Call Run to collect expired buckets.
func NewRateLimiter(rule Rule, logger *slog.Logger, excludePrefixes ...string) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	return &RateLimiter{
		rule:    rule,
		logger:  logger,
		exclude: excludePrefixes,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Run drops expired buckets every window until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	t := time.NewTicker(rl.rule.Window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.gc()
		}
	}
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, k)
		}
	}
}

func (rl *RateLimiter) allow(key string) bool {
	if rl.rule.Requests <= 0 {
		return true
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(rl.rule.Window)}
		return true
	}
	b.count++
	return b.count <= rl.rule.Requests
}

// Middleware answers 429 with a JSON error once a client exceeds the rule.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if rl.allow(ip + " " + r.Method + " " + r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.rule.Window.Seconds())))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
