package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/shopai-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second allowed per IP
	// on /api/search and /api/ask. Each request costs up to two model calls.
	defaultRateLimit = 10
	// defaultRateBurst is the per-IP burst when none is configured.
	defaultRateBurst = 20
	// limiterIdleTTL is how long an idle client keeps its bucket.
	limiterIdleTTL = 5 * time.Minute
)

// clientBucket is one client's token bucket and when it was last used.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket on the model-backed endpoints.
// Idle buckets are evicted every minute so memory stays bounded.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
	// onReject is called with the request path for every 429. May be nil.
	onReject func(path string)
	// now is replaced in tests.
	now func() time.Time
}

// newRateLimiter constructs a rateLimiter and starts the eviction goroutine,
// which exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		now:     time.Now,
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if n := rl.evict(); n > 0 {
					rl.log.Debug("rate limiter evicted idle clients", slog.Int("count", n), slog.Int("tracked", rl.size()))
				}
			}
		}
	}()

	return rl, func() { close(stopCh) }
}

// reserve takes one token for ip. It returns zero when the request may
// proceed, otherwise how long the client should wait. A rejected
// reservation is cancelled so it does not consume future capacity.
func (rl *rateLimiter) reserve(ip string) time.Duration {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	now := rl.now()
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

// evict drops buckets idle for longer than limiterIdleTTL and returns how
// many it removed.
func (rl *rateLimiter) evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	n := 0
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
			n++
		}
	}
	return n
}

// size reports the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware rejects over-limit requests with 429, a JSON error body, and a
// Retry-After header in whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.reserve(ip)
		if wait == 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", wait),
		)
		if rl.onReject != nil {
			rl.onReject(r.URL.Path)
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// Forwarded headers are honoured only when Config.TrustProxy mounts
// chi's RealIP middleware, which rewrites RemoteAddr before this runs.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	addr := r.RemoteAddr
	if net.ParseIP(addr) != nil {
		return addr
	}
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
