// Package ratelimit provides rate limiting for public booking operations.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	// Booking attempt limits
	AttemptMaxPerHour   int // Max booking attempts per invitee email per hour (default: 10)
	AttemptMaxIPPerHour int // Max booking attempts per IP per hour (default: 30)

	// Hold creation limits
	HoldCooldown     time.Duration // Minimum time between holds per email (default: 10s)
	HoldMaxPerHour   int           // Max holds per invitee email per hour (default: 10)
	HoldMaxIPPerHour int           // Max holds per IP per hour (default: 30)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		AttemptMaxPerHour:   10,
		AttemptMaxIPPerHour: 30,
		HoldCooldown:        10 * time.Second,
		HoldMaxPerHour:      10,
		HoldMaxIPPerHour:    30,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps.
type entry struct {
	count   int
	firstAt time.Time // First request in window
	lastAt  time.Time // Most recent request (for cooldown)
}

// Limiter implements per-email and per-IP rate limiting for the anonymous
// booking endpoints.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.RWMutex
	// Keyed by hash of email or IP
	bookByID map[string]*entry
	bookByIP map[string]*entry
	holdByID map[string]*entry
	holdByIP map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		bookByID:      make(map[string]*entry),
		bookByIP:      make(map[string]*entry),
		holdByID:      make(map[string]*entry),
		holdByIP:      make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// CheckBooking checks if a booking attempt is allowed.
// Does NOT record the attempt - call RecordBooking after the request is parsed.
func (l *Limiter) CheckBooking(email, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	idKey := l.hashKey("book:id:", normalizeIdentifier(email))
	ipKey := l.hashKey("book:ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if e := l.bookByID[idKey]; e != nil {
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.AttemptMaxPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "hourly_limit",
			}
		}
	}

	if e := l.bookByIP[ipKey]; e != nil {
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.AttemptMaxIPPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "ip_hourly_limit",
			}
		}
	}

	return LimitResult{Allowed: true}
}

// RecordBooking records a booking attempt.
func (l *Limiter) RecordBooking(email, ip string) {
	now := l.clock.Now()
	idKey := l.hashKey("book:id:", normalizeIdentifier(email))
	ipKey := l.hashKey("book:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(l.bookByID, idKey, now)
	l.record(l.bookByIP, ipKey, now)
}

// CheckHold checks if a hold creation request is allowed.
// Does NOT record the attempt - call RecordHold after the hold is created.
func (l *Limiter) CheckHold(email, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	idKey := l.hashKey("hold:id:", normalizeIdentifier(email))
	ipKey := l.hashKey("hold:ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	// Check per-email cooldown
	if e := l.holdByID[idKey]; e != nil {
		elapsed := now.Sub(e.lastAt)
		if elapsed < l.config.HoldCooldown {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.HoldCooldown - elapsed,
				Reason:     "cooldown",
			}
		}

		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.HoldMaxPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "hourly_limit",
			}
		}
	}

	if e := l.holdByIP[ipKey]; e != nil {
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.HoldMaxIPPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "ip_hourly_limit",
			}
		}
	}

	return LimitResult{Allowed: true}
}

// RecordHold records a successful hold creation.
func (l *Limiter) RecordHold(email, ip string) {
	now := l.clock.Now()
	idKey := l.hashKey("hold:id:", normalizeIdentifier(email))
	ipKey := l.hashKey("hold:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(l.holdByID, idKey, now)
	l.record(l.holdByIP, ipKey, now)
}

func (l *Limiter) record(m map[string]*entry, key string, now time.Time) {
	e := m[key]
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		m[key] = &entry{count: 1, firstAt: now, lastAt: now}
	} else {
		e.count++
		e.lastAt = now
	}
}

func (l *Limiter) hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier to prevent case-based bypass.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range []map[string]*entry{l.bookByID, l.bookByIP, l.holdByID, l.holdByIP} {
		for k, e := range m {
			if now.Sub(e.lastAt) > time.Hour {
				delete(m, k)
			}
		}
	}
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost IP from X-Forwarded-For (added by your proxy).
// When trustProxy is false, ignores X-Forwarded-For entirely (prevents spoofing).
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Use RIGHTMOST IP - this is the one your proxy added, not user-supplied
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				// Skip private/internal IPs to find the real client
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			// All IPs are private, use the last one
			return strings.TrimSpace(parts[len(parts)-1])
		}

		// Check X-Real-IP (set by nginx)
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Fall back to RemoteAddr (direct connection or untrusted proxy)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port (e.g., Unix socket or malformed)
		if parsed := net.ParseIP(r.RemoteAddr); parsed != nil {
			return r.RemoteAddr
		}
		if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
			candidate := r.RemoteAddr[:idx]
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
		return r.RemoteAddr
	}
	return ip
}

// privateNetworks holds parsed CIDR ranges for private/reserved IPs.
var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10", // Link-local
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// isPrivateIP checks if an IP is in a private/reserved range.
// Handles both IPv4 and IPv4-mapped IPv6 addresses (e.g., ::ffff:192.168.1.1).
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// SanitizeIdentifier masks an email or phone for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if strings.Contains(identifier, "@") {
		parts := strings.Split(identifier, "@")
		if len(parts[0]) > 2 {
			return parts[0][:2] + "***@" + parts[1]
		}
		return "***@" + parts[1]
	}
	// Phone: show last 4 digits
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

// LogRateLimitExceeded logs a rate limit event with sanitized identifier.
func LogRateLimitExceeded(limitType, identifier, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("identifier", SanitizeIdentifier(identifier)).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Booking rate limit exceeded")
}
