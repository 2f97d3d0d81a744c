package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines a fixed-window per-IP limit.
type RateLimitConfig struct {
	// MaxRequests per window; default 120.
	MaxRequests int
	// Window length; default 1 minute.
	Window time.Duration
}

func (c *RateLimitConfig) defaults() {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 120
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP fixed-window rate limiting held in
// memory. Expired buckets are garbage collected by StartGC.
type RateLimiter struct {
	cfg     RateLimitConfig
	buckets sync.Map
	exclude []string // path prefixes excluded from rate limiting
}

// NewRateLimiter creates a rate limiter. excludePrefixes lists path
// prefixes that bypass limiting (health checks, static assets).
func NewRateLimiter(cfg RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{cfg: cfg, exclude: excludePrefixes}
}

// Middleware enforces the limit and answers 429 with a JSON body and a
// Retry-After header when it is exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, p) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := clientIP(r)
		now := time.Now()
		v, _ := rl.buckets.LoadOrStore(ip, &bucket{resetAt: now.Add(rl.cfg.Window)})
		b := v.(*bucket)

		b.mu.Lock()
		if now.After(b.resetAt) {
			b.count = 0
			b.resetAt = now.Add(rl.cfg.Window)
		}
		b.count++
		over := b.count > rl.cfg.MaxRequests
		retry := time.Until(b.resetAt)
		b.mu.Unlock()

		if over {
			w.Header().Set("Retry-After", retryAfter(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartGC drops expired buckets every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				rl.buckets.Range(func(key, v any) bool {
					b := v.(*bucket)
					b.mu.Lock()
					expired := now.After(b.resetAt)
					b.mu.Unlock()
					if expired {
						rl.buckets.Delete(key)
					}
					return true
				})
			}
		}
	}()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
