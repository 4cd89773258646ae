package store

import (
	"database/sql"
	"time"
)

// Meeting types supported by event types.
const (
	MeetingTypeOneOnOne = "one_on_one"
	MeetingTypeGroup    = "group"
	MeetingTypeFullDay  = "full_day"
	MeetingTypeOneOff   = "one_off"
)

// Booking statuses. Pending and confirmed bookings occupy capacity.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusNoShow    = "no_show"
)

// Slot invitation statuses. A pending, unexpired invitation occupies
// spots_reserved capacity units.
const (
	InvitationStatusPending   = "pending"
	InvitationStatusBooked    = "booked"
	InvitationStatusExpired   = "expired"
	InvitationStatusCancelled = "cancelled"
)

// Series statuses.
const (
	SeriesStatusActive    = "active"
	SeriesStatusCompleted = "completed"
	SeriesStatusCancelled = "cancelled"
)

// Lifecycle statuses for authored rows (replaces soft-delete flags).
const (
	RecordStatusActive   = "active"
	RecordStatusArchived = "archived"
)

type User struct {
	ID       int64
	Slug     string
	Name     string
	Email    string
	Timezone string
}

type Schedule struct {
	ID                      int64
	UserID                  int64
	Name                    string
	Timezone                string
	IsDefault               bool
	MaxBookingsPerSlot      int64
	MaxBookingDaysInFuture  int64
	MinBookingNoticeMinutes int64
	SlotIntervalMinutes     int64
	AutoDetectInviteeTz     bool
	Status                  string
}

type WeeklyHour struct {
	ID          int64
	ScheduleID  int64
	DayOfWeek   int64 // 0 = Sunday, matching time.Weekday
	IsAvailable bool
	StartTime   string // "HH:MM"
	EndTime     string // "HH:MM"
}

type DateOverride struct {
	ID          int64
	ScheduleID  int64
	Date        string // "2006-01-02" in the schedule's time zone
	IsAvailable bool
	StartTime   sql.NullString // "HH:MM", NULL means unset
	EndTime     sql.NullString
	Status      string
}

type EventType struct {
	ID                  int64
	UserID              int64
	ScheduleID          int64
	Name                string
	Slug                string
	DurationMinutes     int64
	BufferBeforeMinutes int64
	BufferAfterMinutes  int64
	MeetingType         string
	MaxAttendeesPerSlot sql.NullInt64
	IsActive            bool
}

type Booking struct {
	ID           int64
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

type BookingSeries struct {
	ID               int64
	PublicID         string
	EventTypeID      int64
	TotalOccurrences int64
	Status           string
	CreatedAt        time.Time
}

type SlotInvitation struct {
	ID            int64
	Token         string
	EventTypeID   int64
	InviteeEmail  string
	SlotStartTime time.Time
	SlotEndTime   time.Time
	SpotsReserved int64
	Status        string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

type CalendarConnection struct {
	ID         int64
	UserID     int64
	Provider   string
	CalendarID string
	TokenJSON  string
	Status     string
}
