package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// WriteLimitConfig limits how often a client may change settings. Every
// accepted write ends in a flash commit, so bursts are capped per client.
type WriteLimitConfig struct {
	// WritesPerSecond is the sustained refill rate
	WritesPerSecond float64
	// BurstSize is the bucket capacity
	BurstSize int
	// KeyExtractor extracts the key for rate limiting
	KeyExtractor func(*http.Request) string
}

// tokenBucket represents a token bucket for rate limiting
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

// allow checks if a token is available and consumes it
func (tb *tokenBucket) allow(now time.Time) (bool, time.Duration) {
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, 0
	}
	wait := time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second))
	return false, wait
}

type bucketStore struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	now     func() time.Time
}

func (s *bucketStore) allow(key string, cfg WriteLimitConfig) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	bucket, exists := s.buckets[key]
	if !exists {
		// drop idle clients so the map stays small
		for k, b := range s.buckets {
			if now.Sub(b.lastRefill) > time.Hour {
				delete(s.buckets, k)
			}
		}
		bucket = &tokenBucket{
			tokens:     float64(cfg.BurstSize),
			capacity:   float64(cfg.BurstSize),
			refillRate: cfg.WritesPerSecond,
			lastRefill: now,
		}
		s.buckets[key] = bucket
	}
	return bucket.allow(now)
}

// WriteLimit returns a middleware that rate limits settings writes.
// Reads pass through untouched.
func WriteLimit(cfg WriteLimitConfig) func(http.Handler) http.Handler {
	return writeLimit(cfg, time.Now)
}

func writeLimit(cfg WriteLimitConfig, now func() time.Time) func(http.Handler) http.Handler {
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = IPKeyExtractor
	}
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	store := &bucketStore{buckets: make(map[string]*tokenBucket), now: now}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.WritesPerSecond <= 0 || !isWrite(r) {
				next.ServeHTTP(w, r)
				return
			}

			allowed, retryAfter := store.allow(cfg.KeyExtractor(r), cfg)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", cfg.WritesPerSecond))
			if !allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()+0.5))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isWrite reports whether r can change stored settings. GET requests
// carrying ?action=set or ?action=erase are writes too.
func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	case http.MethodGet:
		action := r.URL.Query().Get("action")
		return action == "set" || action == "erase"
	}
	return false
}

// privateNetworks contains RFC 1918 private ranges + loopback.
var privateNetworks []*net.IPNet

func init() {
	privateCIDRs := []string{
		"127.0.0.0/8",    // Loopback
		"10.0.0.0/8",     // RFC 1918 Class A
		"172.16.0.0/12",  // RFC 1918 Class B
		"192.168.0.0/16", // RFC 1918 Class C
		"::1/128",        // IPv6 loopback
		"fc00::/7",       // IPv6 unique local
	}
	for _, cidr := range privateCIDRs {
		_, network, _ := net.ParseCIDR(cidr)
		privateNetworks = append(privateNetworks, network)
	}
}

// IPKeyExtractor extracts the client IP address. X-Forwarded-For and
// X-Real-IP are trusted only from private networks.
func IPKeyExtractor(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if isPrivate(remoteIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// X-Forwarded-For is comma-separated: client, proxy1, proxy2
			parts := strings.SplitN(xff, ",", 2)
			if clientIP := strings.TrimSpace(parts[0]); clientIP != "" {
				return clientIP
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	return remoteIP
}

// stripPort removes the port from an address like "192.168.1.1:12345"
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isPrivate(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	for _, network := range privateNetworks {
		if network.Contains(parsedIP) {
			return true
		}
	}
	return false
}
