// Package availability implements the read side of the booking pipeline:
// resolving schedule windows, generating candidate slots, aggregating
// occupancy and filtering by capacity. Everything here is side-effect free
// apart from store reads and the fail-open calendar lookup; the write path
// lives in internal/booking.
package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/meetlr/meetlr/internal/db/store"
)

var (
	// ErrInvalidTimezone marks a schedule whose IANA zone cannot be loaded.
	// Configuration errors surface to the caller, they are never defaulted
	// away.
	ErrInvalidTimezone = errors.New("invalid schedule time zone")

	// ErrInvalidRange marks a date range whose end precedes its start.
	ErrInvalidRange = errors.New("end date must not precede start date")

	// ErrNoOccurrences marks an empty occurrence list.
	ErrNoOccurrences = errors.New("at least one occurrence is required")

	// ErrTooManyOccurrences marks an occurrence list over the configured cap.
	ErrTooManyOccurrences = errors.New("too many occurrences requested")
)

// Window is a contiguous span of host availability, already converted to UTC
// instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindows groups the availability windows of one calendar date in the
// schedule's time zone.
type DayWindows struct {
	Date    string // "2006-01-02" in the schedule's zone
	Windows []Window
}

// Slot is a candidate [Start, End) range of event-duration length. Full-day
// pseudo-slots span the whole available window of their date.
type Slot struct {
	Start     time.Time
	End       time.Time
	IsFullDay bool
}

// Occupancy is what already consumes capacity for one slot.
type Occupancy struct {
	Occupants       int64
	CalendarBlocked bool
}

// SlotStatus is a slot annotated with its capacity outcome.
type SlotStatus struct {
	Slot
	Available       bool
	CurrentBookings int64
	MaxCapacity     int64
	RemainingSpots  int64
}

// Capacity returns the maximum simultaneous occupants a slot of this event
// type may have. One-on-one and one-off events have an implicit capacity of 1;
// group and full-day events declare theirs, validated at authoring time.
func Capacity(eventType store.EventType) int64 {
	switch eventType.MeetingType {
	case store.MeetingTypeGroup, store.MeetingTypeFullDay:
		if eventType.MaxAttendeesPerSlot.Valid {
			return eventType.MaxAttendeesPerSlot.Int64
		}
		return 1
	default:
		return 1
	}
}

// BufferedWindow widens a slot by the event type's buffers. Occupancy is
// always evaluated against this window so back-to-back bookings respect the
// host's padding.
func BufferedWindow(eventType store.EventType, slot Slot) (time.Time, time.Time) {
	start := slot.Start.Add(-time.Duration(eventType.BufferBeforeMinutes) * time.Minute)
	end := slot.End.Add(time.Duration(eventType.BufferAfterMinutes) * time.Minute)
	return start, end
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func loadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return loc, nil
}
