package availability

import (
	"context"
	"testing"
	"time"

	"github.com/meetlr/meetlr/internal/calendar"
	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
	"github.com/meetlr/meetlr/internal/testutil"
)

type fakeBusyProvider struct {
	intervals []calendar.BusyInterval
	err       error
}

func (p *fakeBusyProvider) GetBusyTimes(_ context.Context, _ int64, _, _ time.Time) ([]calendar.BusyInterval, error) {
	return p.intervals, p.err
}

// pipelineFixture seeds a host with Mon-Fri 09:00-17:00 New York hours and
// returns a service wired to a throwaway database.
func pipelineFixture(t *testing.T, meetingType string, duration, maxAttendees int64, provider calendar.BusyTimeProvider) (*db.DB, *Service, store.EventType) {
	t.Helper()

	database := testutil.NewTestDB(t)
	user := testutil.CreateTestUser(t, database, "host")
	sched := testutil.CreateTestSchedule(t, database, user.ID, "America/New_York")
	eventType := testutil.CreateTestEventType(t, database, user.ID, sched.ID, meetingType, duration, maxAttendees)

	svc := NewService(database.Queries, calendar.NewChecker(provider, time.Second), config.Default().Availability)
	return database, svc, eventType
}

func insertBooking(t *testing.T, database *db.DB, eventTypeID int64, start, end time.Time, status string) {
	t.Helper()

	_, err := database.Queries.CreateBooking(context.Background(), store.CreateBookingParams{
		EventTypeID:  eventTypeID,
		InviteeName:  "Alice",
		InviteeEmail: "alice@example.com",
		StartTime:    start,
		EndTime:      end,
		Status:       status,
		CreatedAt:    start.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
}

func insertInvitation(t *testing.T, database *db.DB, eventTypeID int64, start, end time.Time, spots int64, expiresAt time.Time) {
	t.Helper()

	_, err := database.Queries.CreateSlotInvitation(context.Background(), store.CreateSlotInvitationParams{
		Token:         "tok-" + start.Format("150405"),
		EventTypeID:   eventTypeID,
		InviteeEmail:  "held@example.com",
		SlotStartTime: start,
		SlotEndTime:   end,
		SpotsReserved: spots,
		ExpiresAt:     expiresAt,
		CreatedAt:     expiresAt.Add(-30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("insert invitation: %v", err)
	}
}

func findSlot(t *testing.T, statuses []SlotStatus, start time.Time) SlotStatus {
	t.Helper()

	for _, status := range statuses {
		if status.Start.Equal(start) {
			return status
		}
	}
	t.Fatalf("no slot starting at %v; got %d slots", start, len(statuses))
	return SlotStatus{}
}

func countAvailable(statuses []SlotStatus) int {
	n := 0
	for _, status := range statuses {
		if status.Available {
			n++
		}
	}
	return n
}

// Monday 2026-01-05, New York. 09:00-17:00 EST is 14:00-22:00 UTC.
var (
	pipelineNow  = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	mondayFrom   = time.Date(2026, 1, 5, 5, 0, 0, 0, time.UTC)
	mondayTo     = time.Date(2026, 1, 6, 5, 0, 0, 0, time.UTC)
	mondayTenNY  = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	mondayNineNY = time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
)

func TestAvailableSlots_BookedSlotExcluded(t *testing.T) {
	database, svc, eventType := pipelineFixture(t, store.MeetingTypeOneOnOne, 60, 0, nil)
	insertBooking(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), store.BookingStatusConfirmed)

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	if len(result.Slots) != 8 {
		t.Fatalf("got %d slots, want 8", len(result.Slots))
	}
	if result.TimeZone != "America/New_York" {
		t.Errorf("TimeZone = %q", result.TimeZone)
	}

	booked := findSlot(t, result.Slots, mondayTenNY)
	if booked.Available {
		t.Error("booked slot still reported available")
	}
	if booked.CurrentBookings != 1 || booked.RemainingSpots != 0 {
		t.Errorf("booked slot occupancy = %d/%d remaining", booked.CurrentBookings, booked.RemainingSpots)
	}

	open := findSlot(t, result.Slots, mondayNineNY)
	if !open.Available || open.MaxCapacity != 1 {
		t.Errorf("open slot = %+v", open)
	}
	if got := countAvailable(result.Slots); got != 7 {
		t.Errorf("available count = %d, want 7", got)
	}
}

func TestAvailableSlots_CancelledBookingFreesSlot(t *testing.T) {
	database, svc, eventType := pipelineFixture(t, store.MeetingTypeOneOnOne, 60, 0, nil)
	insertBooking(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), store.BookingStatusCancelled)

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if got := countAvailable(result.Slots); got != 8 {
		t.Errorf("available count = %d, want 8", got)
	}
}

func TestAvailableSlots_GroupCapacity(t *testing.T) {
	database, svc, eventType := pipelineFixture(t, store.MeetingTypeGroup, 60, 3, nil)

	// One seat booked, one held: a third attendee still fits.
	insertBooking(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), store.BookingStatusConfirmed)
	insertInvitation(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), 1, pipelineNow.Add(30*time.Minute))

	// Expired hold on the 11:00 slot must not consume a seat.
	elevenNY := mondayTenNY.Add(time.Hour)
	insertInvitation(t, database, eventType.ID, elevenNY, elevenNY.Add(time.Hour), 2, pipelineNow.Add(-time.Minute))

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	held := findSlot(t, result.Slots, mondayTenNY)
	if !held.Available {
		t.Error("partially filled group slot should stay available")
	}
	if held.CurrentBookings != 2 || held.RemainingSpots != 1 || held.MaxCapacity != 3 {
		t.Errorf("held slot = %d booked, %d remaining, cap %d", held.CurrentBookings, held.RemainingSpots, held.MaxCapacity)
	}

	lapsed := findSlot(t, result.Slots, elevenNY)
	if lapsed.CurrentBookings != 0 || lapsed.RemainingSpots != 3 {
		t.Errorf("expired hold counted: %d booked, %d remaining", lapsed.CurrentBookings, lapsed.RemainingSpots)
	}
}

func TestAvailableSlots_FullGroupSlotExcluded(t *testing.T) {
	database, svc, eventType := pipelineFixture(t, store.MeetingTypeGroup, 60, 2, nil)
	insertBooking(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), store.BookingStatusConfirmed)
	insertBooking(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), store.BookingStatusPending)

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	full := findSlot(t, result.Slots, mondayTenNY)
	if full.Available || full.RemainingSpots != 0 {
		t.Errorf("full slot = %+v", full)
	}
}

func TestAvailableSlots_BuffersBlockAdjacentSlots(t *testing.T) {
	database := testutil.NewTestDB(t)
	user := testutil.CreateTestUser(t, database, "host")
	sched := testutil.CreateTestSchedule(t, database, user.ID, "America/New_York")

	eventType, err := database.Queries.CreateEventType(context.Background(), store.CreateEventTypeParams{
		UserID:              user.ID,
		ScheduleID:          sched.ID,
		Name:                "Deep Dive",
		Slug:                "deep-dive",
		DurationMinutes:     60,
		BufferBeforeMinutes: 30,
		MeetingType:         store.MeetingTypeOneOnOne,
	})
	if err != nil {
		t.Fatalf("create event type: %v", err)
	}

	svc := NewService(database.Queries, nil, config.Default().Availability)
	insertBooking(t, database, eventType.ID, mondayTenNY, mondayTenNY.Add(time.Hour), store.BookingStatusConfirmed)

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	// The 11:00 slot's buffered window reaches back to 10:30 and collides
	// with the 10:00 booking; 12:00 is clear again.
	if next := findSlot(t, result.Slots, mondayTenNY.Add(time.Hour)); next.Available {
		t.Error("slot inside the buffer window should be blocked")
	}
	if clear := findSlot(t, result.Slots, mondayTenNY.Add(2*time.Hour)); !clear.Available {
		t.Error("slot beyond the buffer window should be open")
	}
}

func TestAvailableSlots_CalendarBusyBlocks(t *testing.T) {
	provider := &fakeBusyProvider{intervals: []calendar.BusyInterval{
		{Start: time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC), End: time.Date(2026, 1, 5, 18, 30, 0, 0, time.UTC)},
	}}
	_, svc, eventType := pipelineFixture(t, store.MeetingTypeGroup, 60, 5, provider)

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	blocked := findSlot(t, result.Slots, time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC))
	if blocked.Available {
		t.Error("calendar-blocked slot reported available despite free seats")
	}
	if got := countAvailable(result.Slots); got != 7 {
		t.Errorf("available count = %d, want 7", got)
	}
}

func TestAvailableSlots_CalendarFailureFailsOpen(t *testing.T) {
	provider := &fakeBusyProvider{err: context.DeadlineExceeded}
	_, svc, eventType := pipelineFixture(t, store.MeetingTypeOneOnOne, 60, 0, provider)

	result, err := svc.AvailableSlots(context.Background(), eventType, mondayFrom, mondayTo, pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if got := countAvailable(result.Slots); got != 8 {
		t.Errorf("available count = %d, want 8; provider errors must not hide slots", got)
	}
}

func TestAvailableSlots_NoHoursYieldsEmptyResult(t *testing.T) {
	_, svc, eventType := pipelineFixture(t, store.MeetingTypeOneOnOne, 60, 0, nil)

	// Saturday has no weekly hours.
	from := time.Date(2026, 1, 3, 5, 0, 0, 0, time.UTC)
	result, err := svc.AvailableSlots(context.Background(), eventType, from, from.AddDate(0, 0, 1), pipelineNow)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(result.Slots) != 0 {
		t.Errorf("got %d slots on an unavailable day", len(result.Slots))
	}
}
