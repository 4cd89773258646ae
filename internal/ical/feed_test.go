package ical

import (
	"strings"
	"testing"
	"time"

	"github.com/meetlr/meetlr/internal/db/store"
)

func TestFeed_SerializesConfirmedBookings(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	host := store.User{Name: "Jordan Host"}
	bookings := []store.ConfirmedBookingRow{
		{
			Booking: store.Booking{
				ID:           7,
				InviteeName:  "Alice",
				InviteeEmail: "alice@example.com",
				StartTime:    time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
				EndTime:      time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
				Status:       store.BookingStatusConfirmed,
				CreatedAt:    now.Add(-48 * time.Hour),
			},
			EventTypeName: "Intro Call",
		},
		{
			Booking: store.Booking{
				ID:           9,
				InviteeName:  "Bob",
				InviteeEmail: "bob@example.com",
				StartTime:    time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC),
				EndTime:      time.Date(2026, 3, 3, 19, 0, 0, 0, time.UTC),
				Status:       store.BookingStatusConfirmed,
				CreatedAt:    now.Add(-24 * time.Hour),
			},
			EventTypeName: "Intro Call",
		},
	}

	feed := Feed(host, bookings, now)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"END:VCALENDAR",
		"METHOD:PUBLISH",
		"PRODID:" + prodID,
		"UID:booking-7@meetlr",
		"UID:booking-9@meetlr",
		"SUMMARY:Intro Call with Alice",
		"DTSTART:20260302T150000Z",
		"DTEND:20260302T160000Z",
		"STATUS:CONFIRMED",
	} {
		if !strings.Contains(feed, want) {
			t.Errorf("feed missing %q", want)
		}
	}

	if got := strings.Count(feed, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("feed has %d events, want 2", got)
	}
}

func TestFeed_EmptyCalendarStillValid(t *testing.T) {
	feed := Feed(store.User{Name: "Jordan Host"}, nil, time.Now())

	if !strings.Contains(feed, "BEGIN:VCALENDAR") || !strings.Contains(feed, "END:VCALENDAR") {
		t.Errorf("empty feed is not a calendar: %q", feed)
	}
	if strings.Contains(feed, "BEGIN:VEVENT") {
		t.Error("empty feed contains events")
	}
}
