package authapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedVisitors bounds the throttle's memory. Stale entries are swept
// first; if every entry is fresh the least recently seen one is evicted.
const maxTrackedVisitors = 4096

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginThrottle is a per-key token bucket that only failed logins drain.
// A nil *loginThrottle never blocks.
type loginThrottle struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

func newLoginThrottle(max int, window time.Duration) *loginThrottle {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &loginThrottle{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(max) / window.Seconds()),
		burst:    max,
		ttl:      window,
	}
}

// check reports whether key is currently blocked and for how long.
func (t *loginThrottle) check(key string, now time.Time) (bool, time.Duration) {
	if t == nil || key == "" {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.visitors[key]
	if !ok {
		return false, 0
	}
	tokens := v.limiter.TokensAt(now)
	if tokens >= 1 {
		return false, 0
	}
	wait := time.Duration((1 - tokens) / float64(t.limit) * float64(time.Second))
	return true, wait.Round(time.Second) + time.Second
}

// fail drains one token for key.
func (t *loginThrottle) fail(key string, now time.Time) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.visitors[key]
	if !ok {
		if len(t.visitors) >= maxTrackedVisitors {
			t.sweep(now)
		}
		if len(t.visitors) >= maxTrackedVisitors {
			t.evictOldest()
		}
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[key] = v
	}
	v.lastSeen = now
	v.limiter.AllowN(now, 1)
}

// reset forgets key after a successful login.
func (t *loginThrottle) reset(key string) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	delete(t.visitors, key)
	t.mu.Unlock()
}

func (t *loginThrottle) sweep(now time.Time) {
	for k, v := range t.visitors {
		if now.Sub(v.lastSeen) > t.ttl {
			delete(t.visitors, k)
		}
	}
}

func (t *loginThrottle) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, v := range t.visitors {
		if oldestKey == "" || v.lastSeen.Before(oldest) {
			oldestKey, oldest = k, v.lastSeen
		}
	}
	delete(t.visitors, oldestKey)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

// parseForwardedIP returns the rightmost parseable hop. The trusted proxy
// appends the peer it saw; anything to its left is client supplied.
func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if ip := net.ParseIP(strings.TrimSpace(parts[i])); ip != nil {
			return ip
		}
	}
	return nil
}

func throttleKey(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
