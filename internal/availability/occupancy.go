package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/meetlr/meetlr/internal/calendar"
	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db/store"
)

// Service wires the read-side pipeline together. It is stateless and safe for
// concurrent use across requests.
type Service struct {
	queries *store.Queries
	busy    *calendar.Checker
	cfg     config.AvailabilityConfig
}

func NewService(queries *store.Queries, busy *calendar.Checker, cfg config.AvailabilityConfig) *Service {
	return &Service{queries: queries, busy: busy, cfg: cfg}
}

// SlotsResult is the read-side "available slots" view for one event type.
type SlotsResult struct {
	Slots           []SlotStatus
	TimeZone        string
	MeetingType     string
	IsFullDayEvent  bool
	MaxAttendees    int64
	DurationMinutes int64
}

// AvailableSlots runs resolver → grid → occupancy → capacity for the event
// type over [from, to]. Empty availability is a successful empty result.
func (s *Service) AvailableSlots(ctx context.Context, eventType store.EventType, from, to time.Time, now time.Time) (SlotsResult, error) {
	sched, err := s.queries.GetSchedule(ctx, eventType.ScheduleID)
	if err != nil {
		return SlotsResult{}, fmt.Errorf("load schedule %d: %w", eventType.ScheduleID, err)
	}

	slots, err := s.candidateSlots(ctx, eventType, sched, from, to, now)
	if err != nil {
		return SlotsResult{}, err
	}

	occupancies, err := s.AggregateOccupancy(ctx, eventType, slots, now)
	if err != nil {
		return SlotsResult{}, err
	}

	return SlotsResult{
		Slots:           ApplyCapacity(eventType, slots, occupancies),
		TimeZone:        sched.Timezone,
		MeetingType:     eventType.MeetingType,
		IsFullDayEvent:  eventType.MeetingType == store.MeetingTypeFullDay,
		MaxAttendees:    Capacity(eventType),
		DurationMinutes: eventType.DurationMinutes,
	}, nil
}

// candidateSlots produces the raw grid before occupancy is considered.
func (s *Service) candidateSlots(ctx context.Context, eventType store.EventType, sched store.Schedule, from, to time.Time, now time.Time) ([]Slot, error) {
	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return nil, err
	}

	hours, err := s.queries.ListWeeklyHours(ctx, sched.ID)
	if err != nil {
		return nil, fmt.Errorf("load weekly hours: %w", err)
	}
	overrides, err := s.queries.ListDateOverridesInRange(ctx, store.ListDateOverridesInRangeParams{
		ScheduleID: sched.ID,
		FromDate:   from.In(loc).Format(dateLayout),
		ToDate:     to.In(loc).Format(dateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("load date overrides: %w", err)
	}

	windows, err := ResolveWindows(sched, hours, overrides, from, to, s.cfg.OpenOverrideBehavior)
	if err != nil {
		return nil, err
	}

	interval := sched.SlotIntervalMinutes
	if interval <= 0 {
		interval = eventType.DurationMinutes
	}

	return GenerateSlots(windows, GridParams{
		Duration:        time.Duration(eventType.DurationMinutes) * time.Minute,
		Interval:        time.Duration(interval) * time.Minute,
		MinNotice:       time.Duration(sched.MinBookingNoticeMinutes) * time.Minute,
		MaxDaysInFuture: sched.MaxBookingDaysInFuture,
		Now:             now,
		FullDay:         eventType.MeetingType == store.MeetingTypeFullDay,
	}), nil
}

// AggregateOccupancy collects everything that already consumes capacity for
// the candidate slots: pending/confirmed bookings and active invitations
// overlapping each slot's buffered window, plus external busy time, which
// blocks a slot outright regardless of capacity. The result is index-aligned
// with slots.
func (s *Service) AggregateOccupancy(ctx context.Context, eventType store.EventType, slots []Slot, now time.Time) ([]Occupancy, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	// One fetch covers every buffered window; overlap checks happen in
	// memory per slot.
	spanStart, _ := BufferedWindow(eventType, slots[0])
	_, spanEnd := BufferedWindow(eventType, slots[len(slots)-1])
	for _, slot := range slots {
		ws, we := BufferedWindow(eventType, slot)
		if ws.Before(spanStart) {
			spanStart = ws
		}
		if we.After(spanEnd) {
			spanEnd = we
		}
	}

	bookings, err := s.queries.ListOccupyingBookings(ctx, store.ListOccupyingBookingsParams{
		EventTypeID: eventType.ID,
		From:        spanStart,
		To:          spanEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("load occupying bookings: %w", err)
	}

	invitations, err := s.queries.ListActiveInvitations(ctx, store.ListActiveInvitationsParams{
		EventTypeID: eventType.ID,
		Now:         now,
		From:        spanStart,
		To:          spanEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("load active invitations: %w", err)
	}

	// Fail-open: a provider error inside the checker yields no intervals.
	busy := s.busy.BusyTimes(ctx, eventType.UserID, spanStart, spanEnd)

	occupancies := make([]Occupancy, len(slots))
	for i, slot := range slots {
		ws, we := BufferedWindow(eventType, slot)

		var occ Occupancy
		for _, b := range bookings {
			if Overlaps(b.StartTime, b.EndTime, ws, we) {
				occ.Occupants++
			}
		}
		for _, inv := range invitations {
			if Overlaps(inv.SlotStartTime, inv.SlotEndTime, ws, we) {
				occ.Occupants += inv.SpotsReserved
			}
		}
		for _, interval := range busy {
			if Overlaps(interval.Start, interval.End, ws, we) {
				occ.CalendarBlocked = true
				break
			}
		}
		occupancies[i] = occ
	}
	return occupancies, nil
}

// ApplyCapacity filters slots by the event type's capacity. One-on-one and
// one-off slots need zero occupants; group and full-day slots need occupancy
// below max attendees. A calendar block always wins.
func ApplyCapacity(eventType store.EventType, slots []Slot, occupancies []Occupancy) []SlotStatus {
	capacity := Capacity(eventType)

	statuses := make([]SlotStatus, len(slots))
	for i, slot := range slots {
		occ := occupancies[i]
		remaining := capacity - occ.Occupants
		if remaining < 0 {
			remaining = 0
		}
		statuses[i] = SlotStatus{
			Slot:            slot,
			Available:       occ.Occupants < capacity && !occ.CalendarBlocked,
			CurrentBookings: occ.Occupants,
			MaxCapacity:     capacity,
			RemainingSpots:  remaining,
		}
	}
	return statuses
}
