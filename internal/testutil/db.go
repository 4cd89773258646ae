package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// CreateTestUser inserts a host user.
func CreateTestUser(t *testing.T, database *db.DB, slug string) store.User {
	t.Helper()

	user, err := database.Queries.CreateUser(context.Background(), store.CreateUserParams{
		Slug:     slug,
		Name:     "Test Host",
		Email:    slug + "@example.com",
		Timezone: "America/New_York",
	})
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

// CreateTestSchedule inserts a default schedule in the given zone with
// Mon-Fri 09:00-17:00 weekly hours.
func CreateTestSchedule(t *testing.T, database *db.DB, userID int64, timezone string) store.Schedule {
	t.Helper()

	ctx := context.Background()
	sched, err := database.Queries.CreateSchedule(ctx, store.CreateScheduleParams{
		UserID:                  userID,
		Name:                    "Working Hours",
		Timezone:                timezone,
		IsDefault:               true,
		MaxBookingsPerSlot:      1,
		MaxBookingDaysInFuture:  60,
		MinBookingNoticeMinutes: 0,
		SlotIntervalMinutes:     0,
	})
	if err != nil {
		t.Fatalf("create test schedule: %v", err)
	}

	for day := int64(1); day <= 5; day++ {
		if _, err := database.Queries.InsertWeeklyHour(ctx, store.InsertWeeklyHourParams{
			ScheduleID:  sched.ID,
			DayOfWeek:   day,
			IsAvailable: true,
			StartTime:   "09:00",
			EndTime:     "17:00",
		}); err != nil {
			t.Fatalf("insert weekly hour: %v", err)
		}
	}
	return sched
}

// CreateTestEventType inserts an event type. maxAttendees applies to group
// and full_day meeting types only.
func CreateTestEventType(t *testing.T, database *db.DB, userID, scheduleID int64, meetingType string, durationMinutes int64, maxAttendees int64) store.EventType {
	t.Helper()

	var attendees sql.NullInt64
	if meetingType == store.MeetingTypeGroup || meetingType == store.MeetingTypeFullDay {
		attendees = sql.NullInt64{Int64: maxAttendees, Valid: true}
	}

	eventType, err := database.Queries.CreateEventType(context.Background(), store.CreateEventTypeParams{
		UserID:              userID,
		ScheduleID:          scheduleID,
		Name:                "Test Meeting",
		Slug:                "test-meeting",
		DurationMinutes:     durationMinutes,
		MeetingType:         meetingType,
		MaxAttendeesPerSlot: attendees,
	})
	if err != nil {
		t.Fatalf("create test event type: %v", err)
	}
	return eventType
}
