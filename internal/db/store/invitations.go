package store

import (
	"context"
	"time"
)

const invitationColumns = `id, token, event_type_id, invitee_email, slot_start_time,
	slot_end_time, spots_reserved, status, expires_at, created_at`

func scanInvitation(row interface{ Scan(...any) error }) (SlotInvitation, error) {
	var inv SlotInvitation
	err := row.Scan(
		&inv.ID, &inv.Token, &inv.EventTypeID, &inv.InviteeEmail, &inv.SlotStartTime,
		&inv.SlotEndTime, &inv.SpotsReserved, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt,
	)
	return inv, err
}

const createSlotInvitation = `
INSERT INTO slot_invitations (
	token, event_type_id, invitee_email, slot_start_time, slot_end_time,
	spots_reserved, status, expires_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)
RETURNING ` + invitationColumns

type CreateSlotInvitationParams struct {
	Token         string
	EventTypeID   int64
	InviteeEmail  string
	SlotStartTime time.Time
	SlotEndTime   time.Time
	SpotsReserved int64
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

func (q *Queries) CreateSlotInvitation(ctx context.Context, arg CreateSlotInvitationParams) (SlotInvitation, error) {
	row := q.db.QueryRowContext(ctx, createSlotInvitation,
		arg.Token, arg.EventTypeID, arg.InviteeEmail,
		arg.SlotStartTime.UTC(), arg.SlotEndTime.UTC(),
		arg.SpotsReserved, arg.ExpiresAt.UTC(), arg.CreatedAt.UTC(),
	)
	return scanInvitation(row)
}

const getSlotInvitationByToken = `
SELECT ` + invitationColumns + ` FROM slot_invitations WHERE token = ?
`

func (q *Queries) GetSlotInvitationByToken(ctx context.Context, token string) (SlotInvitation, error) {
	return scanInvitation(q.db.QueryRowContext(ctx, getSlotInvitationByToken, token))
}

// listActiveInvitations returns pending, unexpired invitations overlapping
// [from, to). Expiry is evaluated lazily against the caller's clock so
// occupancy never depends on the sweep having run.
const listActiveInvitations = `
SELECT ` + invitationColumns + ` FROM slot_invitations
WHERE event_type_id = ?
  AND status = 'pending'
  AND expires_at > ?
  AND slot_start_time < ?
  AND slot_end_time > ?
ORDER BY slot_start_time
`

type ListActiveInvitationsParams struct {
	EventTypeID int64
	Now         time.Time
	From        time.Time
	To          time.Time
}

func (q *Queries) ListActiveInvitations(ctx context.Context, arg ListActiveInvitationsParams) ([]SlotInvitation, error) {
	rows, err := q.db.QueryContext(ctx, listActiveInvitations,
		arg.EventTypeID, arg.Now.UTC(), arg.To.UTC(), arg.From.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invitations []SlotInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// sumActiveInvitationSpots is the allocator's transactional counterpart of
// listActiveInvitations: total spots reserved against the buffered window.
const sumActiveInvitationSpots = `
SELECT COALESCE(SUM(spots_reserved), 0) FROM slot_invitations
WHERE event_type_id = ?
  AND status = 'pending'
  AND expires_at > ?
  AND slot_start_time < ?
  AND slot_end_time > ?
`

type SumActiveInvitationSpotsParams struct {
	EventTypeID int64
	Now         time.Time
	WindowStart time.Time
	WindowEnd   time.Time
}

func (q *Queries) SumActiveInvitationSpots(ctx context.Context, arg SumActiveInvitationSpotsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, sumActiveInvitationSpots,
		arg.EventTypeID, arg.Now.UTC(), arg.WindowEnd.UTC(), arg.WindowStart.UTC(),
	)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const markInvitationBooked = `
UPDATE slot_invitations SET status = 'booked'
WHERE id = ? AND status = 'pending'
RETURNING ` + invitationColumns

func (q *Queries) MarkInvitationBooked(ctx context.Context, id int64) (SlotInvitation, error) {
	return scanInvitation(q.db.QueryRowContext(ctx, markInvitationBooked, id))
}

const cancelInvitation = `
UPDATE slot_invitations SET status = 'cancelled'
WHERE token = ? AND status = 'pending'
RETURNING ` + invitationColumns

func (q *Queries) CancelInvitation(ctx context.Context, token string) (SlotInvitation, error) {
	return scanInvitation(q.db.QueryRowContext(ctx, cancelInvitation, token))
}

// ExpireInvitations flips pending rows past their deadline to expired. Pure
// storage hygiene; reads already ignore them via expires_at.
const expireInvitations = `
UPDATE slot_invitations SET status = 'expired'
WHERE status = 'pending' AND expires_at <= ?
`

func (q *Queries) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, expireInvitations, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// getBookingByInvitation supports allocator idempotency: a retry against an
// already-booked invitation returns the original booking.
const getBookingByInvitation = `
SELECT ` + bookingColumns + ` FROM bookings
WHERE event_type_id = ?
  AND invitee_email = ?
  AND start_time = ?
  AND status IN ('pending', 'confirmed')
ORDER BY id
LIMIT 1
`

type GetBookingByInvitationParams struct {
	EventTypeID  int64
	InviteeEmail string
	StartTime    time.Time
}

func (q *Queries) GetBookingByInvitation(ctx context.Context, arg GetBookingByInvitationParams) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, getBookingByInvitation,
		arg.EventTypeID, arg.InviteeEmail, arg.StartTime.UTC(),
	))
}
