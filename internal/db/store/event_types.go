package store

import (
	"context"
	"database/sql"
)

const eventTypeColumns = `id, user_id, schedule_id, name, slug, duration_minutes,
	buffer_before_minutes, buffer_after_minutes, meeting_type, max_attendees_per_slot, is_active`

func scanEventType(row interface{ Scan(...any) error }) (EventType, error) {
	var e EventType
	err := row.Scan(
		&e.ID, &e.UserID, &e.ScheduleID, &e.Name, &e.Slug, &e.DurationMinutes,
		&e.BufferBeforeMinutes, &e.BufferAfterMinutes, &e.MeetingType,
		&e.MaxAttendeesPerSlot, &e.IsActive,
	)
	return e, err
}

const createEventType = `
INSERT INTO event_types (
	user_id, schedule_id, name, slug, duration_minutes,
	buffer_before_minutes, buffer_after_minutes, meeting_type,
	max_attendees_per_slot, is_active
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
RETURNING ` + eventTypeColumns

type CreateEventTypeParams struct {
	UserID              int64
	ScheduleID          int64
	Name                string
	Slug                string
	DurationMinutes     int64
	BufferBeforeMinutes int64
	BufferAfterMinutes  int64
	MeetingType         string
	MaxAttendeesPerSlot sql.NullInt64
}

func (q *Queries) CreateEventType(ctx context.Context, arg CreateEventTypeParams) (EventType, error) {
	row := q.db.QueryRowContext(ctx, createEventType,
		arg.UserID, arg.ScheduleID, arg.Name, arg.Slug, arg.DurationMinutes,
		arg.BufferBeforeMinutes, arg.BufferAfterMinutes, arg.MeetingType,
		arg.MaxAttendeesPerSlot,
	)
	return scanEventType(row)
}

const getEventType = `
SELECT ` + eventTypeColumns + ` FROM event_types WHERE id = ?
`

func (q *Queries) GetEventType(ctx context.Context, id int64) (EventType, error) {
	return scanEventType(q.db.QueryRowContext(ctx, getEventType, id))
}

const getEventTypeBySlug = `
SELECT ` + eventTypeColumns + ` FROM event_types WHERE user_id = ? AND slug = ?
`

type GetEventTypeBySlugParams struct {
	UserID int64
	Slug   string
}

func (q *Queries) GetEventTypeBySlug(ctx context.Context, arg GetEventTypeBySlugParams) (EventType, error) {
	return scanEventType(q.db.QueryRowContext(ctx, getEventTypeBySlug, arg.UserID, arg.Slug))
}

const listEventTypesByUser = `
SELECT ` + eventTypeColumns + ` FROM event_types
WHERE user_id = ? AND is_active = 1
ORDER BY id
`

func (q *Queries) ListEventTypesByUser(ctx context.Context, userID int64) ([]EventType, error) {
	rows, err := q.db.QueryContext(ctx, listEventTypesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var eventTypes []EventType
	for rows.Next() {
		e, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		eventTypes = append(eventTypes, e)
	}
	return eventTypes, rows.Err()
}

const updateEventType = `
UPDATE event_types SET
	name = ?, schedule_id = ?, duration_minutes = ?,
	buffer_before_minutes = ?, buffer_after_minutes = ?,
	meeting_type = ?, max_attendees_per_slot = ?
WHERE id = ?
RETURNING ` + eventTypeColumns

type UpdateEventTypeParams struct {
	ID                  int64
	Name                string
	ScheduleID          int64
	DurationMinutes     int64
	BufferBeforeMinutes int64
	BufferAfterMinutes  int64
	MeetingType         string
	MaxAttendeesPerSlot sql.NullInt64
}

func (q *Queries) UpdateEventType(ctx context.Context, arg UpdateEventTypeParams) (EventType, error) {
	row := q.db.QueryRowContext(ctx, updateEventType,
		arg.Name, arg.ScheduleID, arg.DurationMinutes,
		arg.BufferBeforeMinutes, arg.BufferAfterMinutes,
		arg.MeetingType, arg.MaxAttendeesPerSlot,
		arg.ID,
	)
	return scanEventType(row)
}

const deactivateEventType = `
UPDATE event_types SET is_active = 0 WHERE id = ?
`

func (q *Queries) DeactivateEventType(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deactivateEventType, id)
	return err
}
