package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, clock Clock) *Limiter {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Clock = clock
	l := New(cfg)
	t.Cleanup(l.Close)
	return l
}

func TestCheckBooking_HourlyLimitPerEmail(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)

	for i := 0; i < 10; i++ {
		if res := l.CheckBooking("alice@example.com", "1.2.3.4"); !res.Allowed {
			t.Fatalf("attempt %d blocked: %+v", i, res)
		}
		l.RecordBooking("alice@example.com", "1.2.3.4")
	}

	res := l.CheckBooking("alice@example.com", "1.2.3.4")
	if res.Allowed {
		t.Fatal("11th attempt allowed")
	}
	if res.Reason != "hourly_limit" {
		t.Errorf("reason = %q", res.Reason)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Hour {
		t.Errorf("RetryAfter = %v", res.RetryAfter)
	}

	// Case variants of the same address share the window.
	if res := l.CheckBooking("ALICE@Example.COM", "5.6.7.8"); res.Allowed {
		t.Error("case-variant email bypassed the limit")
	}

	// A different invitee from a different IP is unaffected.
	if res := l.CheckBooking("bob@example.com", "5.6.7.8"); !res.Allowed {
		t.Errorf("unrelated invitee blocked: %+v", res)
	}

	// The window rolls over after an hour.
	clock.advance(time.Hour + time.Minute)
	if res := l.CheckBooking("alice@example.com", "1.2.3.4"); !res.Allowed {
		t.Errorf("attempt after window blocked: %+v", res)
	}
}

func TestCheckBooking_IPLimitAcrossEmails(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.AttemptMaxIPPerHour = 3
	cfg.Clock = clock
	l := New(cfg)
	t.Cleanup(l.Close)

	emails := []string{"a@example.com", "b@example.com", "c@example.com"}
	for _, email := range emails {
		if res := l.CheckBooking(email, "9.9.9.9"); !res.Allowed {
			t.Fatalf("%s blocked early", email)
		}
		l.RecordBooking(email, "9.9.9.9")
	}

	res := l.CheckBooking("d@example.com", "9.9.9.9")
	if res.Allowed || res.Reason != "ip_hourly_limit" {
		t.Errorf("result = %+v", res)
	}
}

func TestCheckHold_Cooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)

	if res := l.CheckHold("alice@example.com", "1.2.3.4"); !res.Allowed {
		t.Fatalf("first hold blocked: %+v", res)
	}
	l.RecordHold("alice@example.com", "1.2.3.4")

	res := l.CheckHold("alice@example.com", "1.2.3.4")
	if res.Allowed || res.Reason != "cooldown" {
		t.Fatalf("immediate retry: %+v", res)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 10*time.Second {
		t.Errorf("RetryAfter = %v", res.RetryAfter)
	}

	clock.advance(11 * time.Second)
	if res := l.CheckHold("alice@example.com", "1.2.3.4"); !res.Allowed {
		t.Errorf("post-cooldown hold blocked: %+v", res)
	}
}

func TestCheckHold_HourlyLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, clock)

	for i := 0; i < 10; i++ {
		l.RecordHold("alice@example.com", "1.2.3.4")
		clock.advance(15 * time.Second)
	}

	res := l.CheckHold("alice@example.com", "1.2.3.4")
	if res.Allowed || res.Reason != "hourly_limit" {
		t.Errorf("result = %+v", res)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:54321",
			want:       "203.0.113.7",
		},
		{
			name:       "spoofed header without proxy trust",
			remoteAddr: "203.0.113.7:54321",
			xff:        "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:       "rightmost public forwarded ip",
			remoteAddr: "10.0.0.1:1234",
			xff:        "198.51.100.1, 203.0.113.9, 10.0.0.2",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "real ip header",
			remoteAddr: "10.0.0.1:1234",
			xri:        "198.51.100.7",
			trustProxy: true,
			want:       "198.51.100.7",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "al***@example.com"},
		{"al@example.com", "***@example.com"},
		{"+12125551234", "***1234"},
		{"x", "***"},
	}
	for _, tt := range tests {
		if got := SanitizeIdentifier(tt.in); got != tt.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
