// Package booking is the transactional write path. The allocator is the only
// component that mutates booking and hold state; every capacity decision is
// re-made inside its transaction immediately before insert.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetlr/meetlr/internal/availability"
	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
)

// ConflictError names the slots that no longer have room. It is an expected,
// frequent outcome the caller renders with alternatives, never a generic
// failure.
type ConflictError struct {
	Slots []availability.Slot
}

func (e ConflictError) Error() string {
	starts := make([]string, len(e.Slots))
	for i, slot := range e.Slots {
		starts[i] = slot.Start.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("slots no longer available: %s", strings.Join(starts, ", "))
}

// ErrInvitationInvalid marks an allocation against an invitation that is
// expired or cancelled.
var ErrInvitationInvalid = errors.New("slot invitation is expired or cancelled")

// Invitee is the booking party.
type Invitee struct {
	Name  string
	Email string
	Phone string // E.164, empty when not provided
}

// AllocationRequest reserves one or more slots of one event type for an
// invitee. InvitationToken, when set, is the idempotency token of a pending
// hold being converted.
type AllocationRequest struct {
	EventType       store.EventType
	Slots           []availability.Slot
	Invitee         Invitee
	InvitationToken string
	Now             time.Time
}

// AllocationResult reports the created bookings, and the series when the
// request carried multiple occurrences. Idempotent reuses an earlier outcome
// for a retried invitation token.
type AllocationResult struct {
	Bookings []store.Booking
	Series   *store.BookingSeries
	Reused   bool
}

// Allocator serializes booking writes.
type Allocator struct {
	database *db.DB

	// SQLite has a single writer; taking this lock up front orders racing
	// allocations so losers see the winner's rows during the re-check
	// instead of surfacing driver lock errors.
	mu sync.Mutex
}

func NewAllocator(database *db.DB) *Allocator {
	return &Allocator{database: database}
}

// Allocate atomically re-checks each slot's occupancy against capacity and
// inserts the booking rows, plus a series row when the request carries
// multiple occurrences. If any slot is over capacity the whole set aborts
// with a ConflictError; a multi-occurrence series never partially commits.
func (a *Allocator) Allocate(ctx context.Context, req AllocationRequest) (AllocationResult, error) {
	if len(req.Slots) == 0 {
		return AllocationResult{}, fmt.Errorf("allocation requires at least one slot")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var result AllocationResult
	err := a.database.RunInTx(ctx, func(txdb *db.DB) error {
		qtx := txdb.Queries

		if req.InvitationToken != "" {
			done, err := a.consumeInvitation(ctx, qtx, req, now, &result)
			if err != nil || done {
				return err
			}
		}

		capacity := availability.Capacity(req.EventType)
		var conflicting []availability.Slot
		for _, slot := range req.Slots {
			occupants, err := countOccupants(ctx, qtx, req.EventType, slot, now)
			if err != nil {
				return err
			}
			if occupants >= capacity {
				conflicting = append(conflicting, slot)
			}
		}
		if len(conflicting) > 0 {
			return ConflictError{Slots: conflicting}
		}

		var seriesID sql.NullInt64
		if len(req.Slots) > 1 {
			series, err := qtx.CreateBookingSeries(ctx, store.CreateBookingSeriesParams{
				PublicID:         uuid.New().String(),
				EventTypeID:      req.EventType.ID,
				TotalOccurrences: int64(len(req.Slots)),
				CreatedAt:        now,
			})
			if err != nil {
				return fmt.Errorf("create booking series: %w", err)
			}
			result.Series = &series
			seriesID = sql.NullInt64{Int64: series.ID, Valid: true}
		}

		for _, slot := range req.Slots {
			created, err := qtx.CreateBooking(ctx, store.CreateBookingParams{
				EventTypeID:  req.EventType.ID,
				SeriesID:     seriesID,
				InviteeName:  req.Invitee.Name,
				InviteeEmail: req.Invitee.Email,
				InviteePhone: nullString(req.Invitee.Phone),
				StartTime:    slot.Start,
				EndTime:      slot.End,
				Status:       store.BookingStatusConfirmed,
				CreatedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("create booking: %w", err)
			}
			result.Bookings = append(result.Bookings, created)
		}
		return nil
	})
	if err != nil {
		return AllocationResult{}, err
	}

	log.Ctx(ctx).Info().
		Int64("event_type_id", req.EventType.ID).
		Int("bookings", len(result.Bookings)).
		Bool("reused", result.Reused).
		Msg("Allocation committed")
	return result, nil
}

// consumeInvitation resolves the idempotency token. A pending, unexpired
// invitation is marked booked inside this transaction so its reserved spots
// stop counting against the allocation it is becoming. A token already booked
// returns the original booking; expired or cancelled tokens are rejected.
// The returned bool reports whether the allocation is already satisfied.
func (a *Allocator) consumeInvitation(ctx context.Context, qtx *store.Queries, req AllocationRequest, now time.Time, result *AllocationResult) (bool, error) {
	inv, err := qtx.GetSlotInvitationByToken(ctx, req.InvitationToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("unknown invitation token %q", req.InvitationToken)
		}
		return false, fmt.Errorf("load invitation: %w", err)
	}

	switch inv.Status {
	case store.InvitationStatusBooked:
		original, err := qtx.GetBookingByInvitation(ctx, store.GetBookingByInvitationParams{
			EventTypeID:  inv.EventTypeID,
			InviteeEmail: inv.InviteeEmail,
			StartTime:    inv.SlotStartTime,
		})
		if err != nil {
			return false, fmt.Errorf("load booking for invitation %q: %w", req.InvitationToken, err)
		}
		result.Bookings = append(result.Bookings, original)
		result.Reused = true
		return true, nil
	case store.InvitationStatusPending:
		if !inv.ExpiresAt.After(now) {
			return false, ErrInvitationInvalid
		}
		if _, err := qtx.MarkInvitationBooked(ctx, inv.ID); err != nil {
			return false, fmt.Errorf("mark invitation booked: %w", err)
		}
		return false, nil
	default:
		return false, ErrInvitationInvalid
	}
}

// countOccupants re-reads occupancy for one slot's buffered window inside the
// allocator's transaction.
func countOccupants(ctx context.Context, qtx *store.Queries, eventType store.EventType, slot availability.Slot, now time.Time) (int64, error) {
	windowStart, windowEnd := availability.BufferedWindow(eventType, slot)

	bookings, err := qtx.CountOccupyingBookings(ctx, store.CountOccupyingBookingsParams{
		EventTypeID: eventType.ID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
	if err != nil {
		return 0, fmt.Errorf("count occupying bookings: %w", err)
	}

	spots, err := qtx.SumActiveInvitationSpots(ctx, store.SumActiveInvitationSpotsParams{
		EventTypeID: eventType.ID,
		Now:         now,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
	if err != nil {
		return 0, fmt.Errorf("sum invitation spots: %w", err)
	}

	return bookings + spots, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
