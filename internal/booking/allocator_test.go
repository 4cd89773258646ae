package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meetlr/meetlr/internal/availability"
	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
	"github.com/meetlr/meetlr/internal/testutil"
)

var allocNow = time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

func allocatorFixture(t *testing.T, meetingType string, maxAttendees int64) (*db.DB, *Allocator, store.EventType) {
	t.Helper()

	database := testutil.NewTestDB(t)
	user := testutil.CreateTestUser(t, database, "host")
	sched := testutil.CreateTestSchedule(t, database, user.ID, "America/New_York")
	eventType := testutil.CreateTestEventType(t, database, user.ID, sched.ID, meetingType, 60, maxAttendees)
	return database, NewAllocator(database), eventType
}

func hourSlot(start time.Time) availability.Slot {
	return availability.Slot{Start: start, End: start.Add(time.Hour)}
}

func alice() Invitee {
	return Invitee{Name: "Alice", Email: "alice@example.com"}
}

func TestAllocate_SingleSlot(t *testing.T) {
	_, allocator, eventType := allocatorFixture(t, store.MeetingTypeOneOnOne, 0)

	slot := hourSlot(allocNow.Add(24 * time.Hour))
	result, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: eventType,
		Slots:     []availability.Slot{slot},
		Invitee:   Invitee{Name: "Alice", Email: "alice@example.com", Phone: "+12125551234"},
		Now:       allocNow,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if len(result.Bookings) != 1 || result.Series != nil || result.Reused {
		t.Fatalf("result = %+v", result)
	}
	booked := result.Bookings[0]
	if booked.Status != store.BookingStatusConfirmed {
		t.Errorf("status = %q", booked.Status)
	}
	if !booked.StartTime.Equal(slot.Start) || !booked.EndTime.Equal(slot.End) {
		t.Errorf("times = %v - %v", booked.StartTime, booked.EndTime)
	}
	if !booked.InviteePhone.Valid || booked.InviteePhone.String != "+12125551234" {
		t.Errorf("phone = %+v", booked.InviteePhone)
	}

	// The slot now has no room for a second one-on-one.
	_, err = allocator.Allocate(context.Background(), AllocationRequest{
		EventType: eventType,
		Slots:     []availability.Slot{slot},
		Invitee:   Invitee{Name: "Bob", Email: "bob@example.com"},
		Now:       allocNow,
	})
	var conflict ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second allocation: err = %v", err)
	}
	if len(conflict.Slots) != 1 || !conflict.Slots[0].Start.Equal(slot.Start) {
		t.Errorf("conflict slots = %+v", conflict.Slots)
	}
}

func TestAllocate_GroupCapacityUnderContention(t *testing.T) {
	_, allocator, eventType := allocatorFixture(t, store.MeetingTypeGroup, 3)

	slot := hourSlot(allocNow.Add(24 * time.Hour))
	const attempts = 8

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = allocator.Allocate(context.Background(), AllocationRequest{
				EventType: eventType,
				Slots:     []availability.Slot{slot},
				Invitee:   Invitee{Name: "Guest", Email: "guest@example.com"},
				Now:       allocNow,
			})
		}(i)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &ConflictError{}):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 || conflicted != 5 {
		t.Errorf("succeeded = %d, conflicted = %d; want 3 and 5", succeeded, conflicted)
	}
}

func TestAllocate_BufferedWindowExcludesNeighbors(t *testing.T) {
	database, allocator, _ := allocatorFixture(t, store.MeetingTypeOneOnOne, 0)

	user, err := database.Queries.GetUserBySlug(context.Background(), "host")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	sched, err := database.Queries.GetDefaultScheduleForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	buffered, err := database.Queries.CreateEventType(context.Background(), store.CreateEventTypeParams{
		UserID:             user.ID,
		ScheduleID:         sched.ID,
		Name:               "Padded",
		Slug:               "padded",
		DurationMinutes:    60,
		BufferAfterMinutes: 30,
		MeetingType:        store.MeetingTypeOneOnOne,
	})
	if err != nil {
		t.Fatalf("create event type: %v", err)
	}

	first := hourSlot(allocNow.Add(24 * time.Hour))
	if _, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: buffered,
		Slots:     []availability.Slot{first},
		Invitee:   alice(),
		Now:       allocNow,
	}); err != nil {
		t.Fatalf("first allocation: %v", err)
	}

	// The next slot's buffered window stretches to 30 minutes past its end
	// and collides with nothing, but the first booking's own window extends
	// into this slot's start.
	adjacent := hourSlot(first.End)
	_, err = allocator.Allocate(context.Background(), AllocationRequest{
		EventType: buffered,
		Slots:     []availability.Slot{adjacent},
		Invitee:   Invitee{Name: "Bob", Email: "bob@example.com"},
		Now:       allocNow,
	})
	if !errors.As(err, &ConflictError{}) {
		t.Fatalf("adjacent allocation: err = %v", err)
	}

	later := hourSlot(first.End.Add(time.Hour))
	if _, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: buffered,
		Slots:     []availability.Slot{later},
		Invitee:   Invitee{Name: "Carol", Email: "carol@example.com"},
		Now:       allocNow,
	}); err != nil {
		t.Fatalf("clear allocation: %v", err)
	}
}

func TestAllocate_SeriesAllOrNothing(t *testing.T) {
	database, allocator, eventType := allocatorFixture(t, store.MeetingTypeOneOnOne, 0)

	slots := []availability.Slot{
		hourSlot(allocNow.Add(24 * time.Hour)),
		hourSlot(allocNow.Add(7 * 24 * time.Hour)),
		hourSlot(allocNow.Add(14 * 24 * time.Hour)),
	}

	// Occupy the middle occurrence first.
	if _, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: eventType,
		Slots:     []availability.Slot{slots[1]},
		Invitee:   Invitee{Name: "Bob", Email: "bob@example.com"},
		Now:       allocNow,
	}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	_, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: eventType,
		Slots:     slots,
		Invitee:   alice(),
		Now:       allocNow,
	})
	var conflict ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("series allocation: err = %v", err)
	}
	if len(conflict.Slots) != 1 || !conflict.Slots[0].Start.Equal(slots[1].Start) {
		t.Errorf("conflict slots = %+v", conflict.Slots)
	}

	// Nothing from the failed series may have committed.
	remaining, err := database.Queries.ListOccupyingBookings(context.Background(), store.ListOccupyingBookingsParams{
		EventTypeID: eventType.ID,
		From:        allocNow,
		To:          allocNow.Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("got %d bookings after aborted series, want the 1 seed", len(remaining))
	}
}

func TestAllocate_SeriesCommitsTogether(t *testing.T) {
	database, allocator, eventType := allocatorFixture(t, store.MeetingTypeOneOnOne, 0)

	slots := []availability.Slot{
		hourSlot(allocNow.Add(24 * time.Hour)),
		hourSlot(allocNow.Add(7 * 24 * time.Hour)),
		hourSlot(allocNow.Add(14 * 24 * time.Hour)),
	}
	result, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: eventType,
		Slots:     slots,
		Invitee:   alice(),
		Now:       allocNow,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if result.Series == nil {
		t.Fatal("expected a series for a multi-occurrence allocation")
	}
	if result.Series.TotalOccurrences != 3 || result.Series.Status != store.SeriesStatusActive {
		t.Errorf("series = %+v", result.Series)
	}
	if len(result.Bookings) != 3 {
		t.Fatalf("got %d bookings", len(result.Bookings))
	}
	for _, booked := range result.Bookings {
		if !booked.SeriesID.Valid || booked.SeriesID.Int64 != result.Series.ID {
			t.Errorf("booking %d not linked to series: %+v", booked.ID, booked.SeriesID)
		}
	}

	linked, err := database.Queries.ListBookingsBySeries(context.Background(), result.Series.ID)
	if err != nil {
		t.Fatalf("list series bookings: %v", err)
	}
	if len(linked) != 3 {
		t.Errorf("series query returned %d bookings", len(linked))
	}
}

func TestAllocate_InvitationIdempotency(t *testing.T) {
	_, allocator, eventType := allocatorFixture(t, store.MeetingTypeOneOnOne, 0)

	slot := hourSlot(allocNow.Add(24 * time.Hour))
	invitation, err := allocator.Reserve(context.Background(), HoldRequest{
		EventType:    eventType,
		Slot:         slot,
		InviteeEmail: "alice@example.com",
		Spots:        1,
		TTL:          30 * time.Minute,
		Now:          allocNow,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	req := AllocationRequest{
		EventType:       eventType,
		Slots:           []availability.Slot{slot},
		Invitee:         alice(),
		InvitationToken: invitation.Token,
		Now:             allocNow.Add(5 * time.Minute),
	}
	first, err := allocator.Allocate(context.Background(), req)
	if err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if first.Reused || len(first.Bookings) != 1 {
		t.Fatalf("first result = %+v", first)
	}

	// A retried token returns the original booking instead of double
	// booking the slot.
	second, err := allocator.Allocate(context.Background(), req)
	if err != nil {
		t.Fatalf("retried allocation: %v", err)
	}
	if !second.Reused {
		t.Error("retry not flagged as reused")
	}
	if len(second.Bookings) != 1 || second.Bookings[0].ID != first.Bookings[0].ID {
		t.Errorf("retry returned %+v, want booking %d", second.Bookings, first.Bookings[0].ID)
	}
}

func TestAllocate_ExpiredInvitationRejected(t *testing.T) {
	_, allocator, eventType := allocatorFixture(t, store.MeetingTypeOneOnOne, 0)

	slot := hourSlot(allocNow.Add(24 * time.Hour))
	invitation, err := allocator.Reserve(context.Background(), HoldRequest{
		EventType:    eventType,
		Slot:         slot,
		InviteeEmail: "alice@example.com",
		Spots:        1,
		TTL:          10 * time.Minute,
		Now:          allocNow,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	_, err = allocator.Allocate(context.Background(), AllocationRequest{
		EventType:       eventType,
		Slots:           []availability.Slot{slot},
		Invitee:         alice(),
		InvitationToken: invitation.Token,
		Now:             allocNow.Add(11 * time.Minute),
	})
	if !errors.Is(err, ErrInvitationInvalid) {
		t.Fatalf("err = %v, want ErrInvitationInvalid", err)
	}
}

func TestReserve_RespectsCapacity(t *testing.T) {
	_, allocator, eventType := allocatorFixture(t, store.MeetingTypeGroup, 3)

	slot := hourSlot(allocNow.Add(24 * time.Hour))
	if _, err := allocator.Allocate(context.Background(), AllocationRequest{
		EventType: eventType,
		Slots:     []availability.Slot{slot},
		Invitee:   alice(),
		Now:       allocNow,
	}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	// Two held spots on top of one booking fills the slot.
	if _, err := allocator.Reserve(context.Background(), HoldRequest{
		EventType:    eventType,
		Slot:         slot,
		InviteeEmail: "bob@example.com",
		Spots:        2,
		TTL:          30 * time.Minute,
		Now:          allocNow,
	}); err != nil {
		t.Fatalf("hold within capacity: %v", err)
	}

	_, err := allocator.Reserve(context.Background(), HoldRequest{
		EventType:    eventType,
		Slot:         slot,
		InviteeEmail: "carol@example.com",
		Spots:        1,
		TTL:          30 * time.Minute,
		Now:          allocNow,
	})
	if !errors.As(err, &ConflictError{}) {
		t.Fatalf("overbooked hold: err = %v", err)
	}
}

func TestReserve_RejectsZeroSpots(t *testing.T) {
	_, allocator, eventType := allocatorFixture(t, store.MeetingTypeGroup, 3)

	_, err := allocator.Reserve(context.Background(), HoldRequest{
		EventType:    eventType,
		Slot:         hourSlot(allocNow.Add(24 * time.Hour)),
		InviteeEmail: "alice@example.com",
		Spots:        0,
		TTL:          30 * time.Minute,
		Now:          allocNow,
	})
	if err == nil {
		t.Fatal("expected an error for a zero-spot hold")
	}
}
