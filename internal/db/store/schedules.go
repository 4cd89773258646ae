package store

import (
	"context"
	"database/sql"
)

const scheduleColumns = `id, user_id, name, timezone, is_default, max_bookings_per_slot,
	max_booking_days_in_future, min_booking_notice_minutes, slot_interval_minutes,
	auto_detect_invitee_timezone, status`

func scanSchedule(row interface{ Scan(...any) error }) (Schedule, error) {
	var s Schedule
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Timezone, &s.IsDefault, &s.MaxBookingsPerSlot,
		&s.MaxBookingDaysInFuture, &s.MinBookingNoticeMinutes, &s.SlotIntervalMinutes,
		&s.AutoDetectInviteeTz, &s.Status,
	)
	return s, err
}

const createSchedule = `
INSERT INTO schedules (
	user_id, name, timezone, is_default, max_bookings_per_slot,
	max_booking_days_in_future, min_booking_notice_minutes, slot_interval_minutes,
	auto_detect_invitee_timezone, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'active')
RETURNING ` + scheduleColumns

type CreateScheduleParams struct {
	UserID                  int64
	Name                    string
	Timezone                string
	IsDefault               bool
	MaxBookingsPerSlot      int64
	MaxBookingDaysInFuture  int64
	MinBookingNoticeMinutes int64
	SlotIntervalMinutes     int64
	AutoDetectInviteeTz     bool
}

func (q *Queries) CreateSchedule(ctx context.Context, arg CreateScheduleParams) (Schedule, error) {
	row := q.db.QueryRowContext(ctx, createSchedule,
		arg.UserID, arg.Name, arg.Timezone, arg.IsDefault, arg.MaxBookingsPerSlot,
		arg.MaxBookingDaysInFuture, arg.MinBookingNoticeMinutes, arg.SlotIntervalMinutes,
		arg.AutoDetectInviteeTz,
	)
	return scanSchedule(row)
}

const getSchedule = `
SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ? AND status = 'active'
`

func (q *Queries) GetSchedule(ctx context.Context, id int64) (Schedule, error) {
	return scanSchedule(q.db.QueryRowContext(ctx, getSchedule, id))
}

const getDefaultScheduleForUser = `
SELECT ` + scheduleColumns + ` FROM schedules
WHERE user_id = ? AND is_default = 1 AND status = 'active'
`

func (q *Queries) GetDefaultScheduleForUser(ctx context.Context, userID int64) (Schedule, error) {
	return scanSchedule(q.db.QueryRowContext(ctx, getDefaultScheduleForUser, userID))
}

const listSchedulesByUser = `
SELECT ` + scheduleColumns + ` FROM schedules
WHERE user_id = ? AND status = 'active'
ORDER BY id
`

func (q *Queries) ListSchedulesByUser(ctx context.Context, userID int64) ([]Schedule, error) {
	rows, err := q.db.QueryContext(ctx, listSchedulesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

const updateSchedule = `
UPDATE schedules SET
	name = ?, timezone = ?, max_bookings_per_slot = ?,
	max_booking_days_in_future = ?, min_booking_notice_minutes = ?,
	slot_interval_minutes = ?, auto_detect_invitee_timezone = ?
WHERE id = ? AND status = 'active'
RETURNING ` + scheduleColumns

type UpdateScheduleParams struct {
	ID                      int64
	Name                    string
	Timezone                string
	MaxBookingsPerSlot      int64
	MaxBookingDaysInFuture  int64
	MinBookingNoticeMinutes int64
	SlotIntervalMinutes     int64
	AutoDetectInviteeTz     bool
}

func (q *Queries) UpdateSchedule(ctx context.Context, arg UpdateScheduleParams) (Schedule, error) {
	row := q.db.QueryRowContext(ctx, updateSchedule,
		arg.Name, arg.Timezone, arg.MaxBookingsPerSlot, arg.MaxBookingDaysInFuture,
		arg.MinBookingNoticeMinutes, arg.SlotIntervalMinutes, arg.AutoDetectInviteeTz,
		arg.ID,
	)
	return scanSchedule(row)
}

const clearDefaultSchedule = `
UPDATE schedules SET is_default = 0 WHERE user_id = ? AND is_default = 1
`

const markDefaultSchedule = `
UPDATE schedules SET is_default = 1 WHERE id = ? AND user_id = ? AND status = 'active'
`

// SetDefaultSchedule clears any existing default for the user before marking
// the new one, keeping the one-default invariant. Run it inside a transaction.
func (q *Queries) SetDefaultSchedule(ctx context.Context, userID, scheduleID int64) error {
	if _, err := q.db.ExecContext(ctx, clearDefaultSchedule, userID); err != nil {
		return err
	}
	result, err := q.db.ExecContext(ctx, markDefaultSchedule, scheduleID, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const archiveSchedule = `
UPDATE schedules SET status = 'archived', is_default = 0 WHERE id = ?
`

func (q *Queries) ArchiveSchedule(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, archiveSchedule, id)
	return err
}

const deleteWeeklyHours = `
DELETE FROM weekly_hours WHERE schedule_id = ?
`

func (q *Queries) DeleteWeeklyHours(ctx context.Context, scheduleID int64) error {
	_, err := q.db.ExecContext(ctx, deleteWeeklyHours, scheduleID)
	return err
}

const insertWeeklyHour = `
INSERT INTO weekly_hours (schedule_id, day_of_week, is_available, start_time, end_time)
VALUES (?, ?, ?, ?, ?)
RETURNING id, schedule_id, day_of_week, is_available, start_time, end_time
`

type InsertWeeklyHourParams struct {
	ScheduleID  int64
	DayOfWeek   int64
	IsAvailable bool
	StartTime   string
	EndTime     string
}

func (q *Queries) InsertWeeklyHour(ctx context.Context, arg InsertWeeklyHourParams) (WeeklyHour, error) {
	row := q.db.QueryRowContext(ctx, insertWeeklyHour,
		arg.ScheduleID, arg.DayOfWeek, arg.IsAvailable, arg.StartTime, arg.EndTime,
	)
	var h WeeklyHour
	err := row.Scan(&h.ID, &h.ScheduleID, &h.DayOfWeek, &h.IsAvailable, &h.StartTime, &h.EndTime)
	return h, err
}

const listWeeklyHours = `
SELECT id, schedule_id, day_of_week, is_available, start_time, end_time
FROM weekly_hours
WHERE schedule_id = ?
ORDER BY day_of_week, start_time
`

func (q *Queries) ListWeeklyHours(ctx context.Context, scheduleID int64) ([]WeeklyHour, error) {
	rows, err := q.db.QueryContext(ctx, listWeeklyHours, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hours []WeeklyHour
	for rows.Next() {
		var h WeeklyHour
		if err := rows.Scan(&h.ID, &h.ScheduleID, &h.DayOfWeek, &h.IsAvailable, &h.StartTime, &h.EndTime); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

const upsertDateOverride = `
INSERT INTO date_overrides (schedule_id, date, is_available, start_time, end_time, status)
VALUES (?, ?, ?, ?, ?, 'active')
ON CONFLICT (schedule_id, date) DO UPDATE SET
	is_available = excluded.is_available,
	start_time = excluded.start_time,
	end_time = excluded.end_time,
	status = 'active'
RETURNING id, schedule_id, date, is_available, start_time, end_time, status
`

type UpsertDateOverrideParams struct {
	ScheduleID  int64
	Date        string
	IsAvailable bool
	StartTime   sql.NullString
	EndTime     sql.NullString
}

func (q *Queries) UpsertDateOverride(ctx context.Context, arg UpsertDateOverrideParams) (DateOverride, error) {
	row := q.db.QueryRowContext(ctx, upsertDateOverride,
		arg.ScheduleID, arg.Date, arg.IsAvailable, arg.StartTime, arg.EndTime,
	)
	var o DateOverride
	err := row.Scan(&o.ID, &o.ScheduleID, &o.Date, &o.IsAvailable, &o.StartTime, &o.EndTime, &o.Status)
	return o, err
}

const deleteDateOverride = `
UPDATE date_overrides SET status = 'archived' WHERE schedule_id = ? AND date = ?
`

func (q *Queries) DeleteDateOverride(ctx context.Context, scheduleID int64, date string) error {
	_, err := q.db.ExecContext(ctx, deleteDateOverride, scheduleID, date)
	return err
}

const listDateOverridesInRange = `
SELECT id, schedule_id, date, is_available, start_time, end_time, status
FROM date_overrides
WHERE schedule_id = ? AND date >= ? AND date <= ? AND status = 'active'
ORDER BY date
`

type ListDateOverridesInRangeParams struct {
	ScheduleID int64
	FromDate   string
	ToDate     string
}

func (q *Queries) ListDateOverridesInRange(ctx context.Context, arg ListDateOverridesInRangeParams) ([]DateOverride, error) {
	rows, err := q.db.QueryContext(ctx, listDateOverridesInRange, arg.ScheduleID, arg.FromDate, arg.ToDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []DateOverride
	for rows.Next() {
		var o DateOverride
		if err := rows.Scan(&o.ID, &o.ScheduleID, &o.Date, &o.IsAvailable, &o.StartTime, &o.EndTime, &o.Status); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
