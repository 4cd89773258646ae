package store

import (
	"context"
	"database/sql"
	"time"
)

const bookingColumns = `id, event_type_id, series_id, invitee_name, invitee_email,
	invitee_phone, start_time, end_time, status, created_at`

func scanBooking(row interface{ Scan(...any) error }) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.EventTypeID, &b.SeriesID, &b.InviteeName, &b.InviteeEmail,
		&b.InviteePhone, &b.StartTime, &b.EndTime, &b.Status, &b.CreatedAt,
	)
	return b, err
}

const createBooking = `
INSERT INTO bookings (
	event_type_id, series_id, invitee_name, invitee_email, invitee_phone,
	start_time, end_time, status, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + bookingColumns

type CreateBookingParams struct {
	EventTypeID  int64
	SeriesID     sql.NullInt64
	InviteeName  string
	InviteeEmail string
	InviteePhone sql.NullString
	StartTime    time.Time
	EndTime      time.Time
	Status       string
	CreatedAt    time.Time
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	row := q.db.QueryRowContext(ctx, createBooking,
		arg.EventTypeID, arg.SeriesID, arg.InviteeName, arg.InviteeEmail, arg.InviteePhone,
		arg.StartTime.UTC(), arg.EndTime.UTC(), arg.Status, arg.CreatedAt.UTC(),
	)
	return scanBooking(row)
}

const getBooking = `
SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?
`

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, getBooking, id))
}

// listOccupyingBookings returns pending/confirmed bookings overlapping
// [from, to) for an event type. Overlap uses the half-open interval rule:
// booking.start < to AND booking.end > from.
const listOccupyingBookings = `
SELECT ` + bookingColumns + ` FROM bookings
WHERE event_type_id = ?
  AND status IN ('pending', 'confirmed')
  AND start_time < ?
  AND end_time > ?
ORDER BY start_time
`

type ListOccupyingBookingsParams struct {
	EventTypeID int64
	From        time.Time
	To          time.Time
}

func (q *Queries) ListOccupyingBookings(ctx context.Context, arg ListOccupyingBookingsParams) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, listOccupyingBookings, arg.EventTypeID, arg.To.UTC(), arg.From.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// countOccupyingBookings is the transactional re-check used by the allocator:
// it counts occupants of the buffered window immediately before insert.
const countOccupyingBookings = `
SELECT COUNT(*) FROM bookings
WHERE event_type_id = ?
  AND status IN ('pending', 'confirmed')
  AND start_time < ?
  AND end_time > ?
`

type CountOccupyingBookingsParams struct {
	EventTypeID int64
	WindowStart time.Time
	WindowEnd   time.Time
}

func (q *Queries) CountOccupyingBookings(ctx context.Context, arg CountOccupyingBookingsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countOccupyingBookings,
		arg.EventTypeID, arg.WindowEnd.UTC(), arg.WindowStart.UTC(),
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const cancelBooking = `
UPDATE bookings SET status = 'cancelled'
WHERE id = ? AND status IN ('pending', 'confirmed')
RETURNING ` + bookingColumns

func (q *Queries) CancelBooking(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, cancelBooking, id))
}

const markBookingNoShow = `
UPDATE bookings SET status = 'no_show'
WHERE id = ? AND status = 'confirmed'
RETURNING ` + bookingColumns

func (q *Queries) MarkBookingNoShow(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, markBookingNoShow, id))
}

const listBookingsBySeries = `
SELECT ` + bookingColumns + ` FROM bookings WHERE series_id = ? ORDER BY start_time
`

func (q *Queries) ListBookingsBySeries(ctx context.Context, seriesID int64) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, listBookingsBySeries, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ConfirmedBookingRow carries the event type name alongside the booking for
// calendar export.
type ConfirmedBookingRow struct {
	Booking
	EventTypeName string
}

const listConfirmedBookingsByUser = `
SELECT b.id, b.event_type_id, b.series_id, b.invitee_name, b.invitee_email,
	b.invitee_phone, b.start_time, b.end_time, b.status, b.created_at, et.name
FROM bookings b
JOIN event_types et ON et.id = b.event_type_id
WHERE et.user_id = ? AND b.status = 'confirmed' AND b.end_time > ?
ORDER BY b.start_time
`

type ListConfirmedBookingsByUserParams struct {
	UserID int64
	After  time.Time
}

func (q *Queries) ListConfirmedBookingsByUser(ctx context.Context, arg ListConfirmedBookingsByUserParams) ([]ConfirmedBookingRow, error) {
	rows, err := q.db.QueryContext(ctx, listConfirmedBookingsByUser, arg.UserID, arg.After.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bookings []ConfirmedBookingRow
	for rows.Next() {
		var b ConfirmedBookingRow
		if err := rows.Scan(
			&b.ID, &b.EventTypeID, &b.SeriesID, &b.InviteeName, &b.InviteeEmail,
			&b.InviteePhone, &b.StartTime, &b.EndTime, &b.Status, &b.CreatedAt,
			&b.EventTypeName,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

const createBookingSeries = `
INSERT INTO booking_series (public_id, event_type_id, total_occurrences, status, created_at)
VALUES (?, ?, ?, 'active', ?)
RETURNING id, public_id, event_type_id, total_occurrences, status, created_at
`

type CreateBookingSeriesParams struct {
	PublicID         string
	EventTypeID      int64
	TotalOccurrences int64
	CreatedAt        time.Time
}

func (q *Queries) CreateBookingSeries(ctx context.Context, arg CreateBookingSeriesParams) (BookingSeries, error) {
	row := q.db.QueryRowContext(ctx, createBookingSeries,
		arg.PublicID, arg.EventTypeID, arg.TotalOccurrences, arg.CreatedAt.UTC(),
	)
	var s BookingSeries
	err := row.Scan(&s.ID, &s.PublicID, &s.EventTypeID, &s.TotalOccurrences, &s.Status, &s.CreatedAt)
	return s, err
}

const getBookingSeriesByPublicID = `
SELECT id, public_id, event_type_id, total_occurrences, status, created_at
FROM booking_series WHERE public_id = ?
`

func (q *Queries) GetBookingSeriesByPublicID(ctx context.Context, publicID string) (BookingSeries, error) {
	row := q.db.QueryRowContext(ctx, getBookingSeriesByPublicID, publicID)
	var s BookingSeries
	err := row.Scan(&s.ID, &s.PublicID, &s.EventTypeID, &s.TotalOccurrences, &s.Status, &s.CreatedAt)
	return s, err
}

const updateBookingSeriesStatus = `
UPDATE booking_series SET status = ? WHERE id = ?
`

func (q *Queries) UpdateBookingSeriesStatus(ctx context.Context, id int64, status string) error {
	_, err := q.db.ExecContext(ctx, updateBookingSeriesStatus, status, id)
	return err
}

const cancelSeriesBookings = `
UPDATE bookings SET status = 'cancelled'
WHERE series_id = ? AND status IN ('pending', 'confirmed') AND start_time > ?
`

type CancelSeriesBookingsParams struct {
	SeriesID int64
	After    time.Time
}

// CancelSeriesBookings cancels the remaining future member bookings of a series.
func (q *Queries) CancelSeriesBookings(ctx context.Context, arg CancelSeriesBookingsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, cancelSeriesBookings, arg.SeriesID, arg.After.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// completeFinishedSeries is storage hygiene: series whose member bookings are
// all in the past (or cancelled) move to completed.
const completeFinishedSeries = `
UPDATE booking_series SET status = 'completed'
WHERE status = 'active'
  AND NOT EXISTS (
	SELECT 1 FROM bookings b
	WHERE b.series_id = booking_series.id
	  AND b.status IN ('pending', 'confirmed')
	  AND b.end_time > ?
  )
`

func (q *Queries) CompleteFinishedSeries(ctx context.Context, now time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, completeFinishedSeries, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
