package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
	// TrustedProxies lists proxy addresses or CIDRs whose X-Real-IP header is
	// honoured. Requests from anywhere else are keyed by their socket address.
	TrustedProxies []string
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per caller. Authenticated requests are keyed
// by their subject, anonymous ones by client address.
type RateLimiter struct {
	logger   *slog.Logger
	limit    RateLimit
	idleTTL  time.Duration
	sweepGap time.Duration
	trusted  []*net.IPNet
	mu       sync.Mutex
	visitors map[string]*rateEntry
	swept    time.Time
	clockNow func() time.Time
	onReject func(key string)
}

func NewRateLimiter(limit RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    limit,
		idleTTL:  5 * time.Minute,
		sweepGap: time.Minute,
		trusted:  parseTrustedProxies(limit.TrustedProxies, logger),
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

func parseTrustedProxies(entries []string, logger *slog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				logger.Warn("ignoring invalid trusted proxy", slog.String("proxy", entry))
				continue
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", slog.String("proxy", entry), slog.Any("error", err))
			continue
		}
		nets = append(nets, network)
	}
	return nets
}

// OnReject registers a callback invoked with the caller key of every
// throttled request.
func (r *RateLimiter) OnReject(fn func(key string)) {
	r.onReject = fn
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limit.RequestsPerSecond <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		key := r.callerKey(req)
		if !r.Allow(key) {
			r.logger.Warn("request throttled", slog.String("caller", key))
			if r.onReject != nil {
				r.onReject(key)
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Allow consumes one token from key's bucket.
func (r *RateLimiter) Allow(key string) bool {
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.swept) >= r.sweepGap {
		r.evictIdle(now)
		r.swept = now
	}
	entry, ok := r.visitors[key]
	if !ok {
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(r.limit.RequestsPerSecond), burst)}
		r.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) evictIdle(now time.Time) {
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, key)
		}
	}
}

func (r *RateLimiter) callerKey(req *http.Request) string {
	if id, ok := IdentityFromContext(req.Context()); ok {
		return "sub:" + id.Subject
	}
	return "ip:" + r.clientIP(req)
}

func (r *RateLimiter) clientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if r.isTrustedProxy(host) {
		if forwarded := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-IP"))); forwarded != nil {
			return forwarded.String()
		}
	}
	return host
}

func (r *RateLimiter) isTrustedProxy(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range r.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
