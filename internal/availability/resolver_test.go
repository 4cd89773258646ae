package availability

import (
	"database/sql"
	"testing"
	"time"

	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db/store"
)

func nySchedule() store.Schedule {
	return store.Schedule{
		ID:       1,
		Timezone: "America/New_York",
	}
}

func weekdayHours(days ...int64) []store.WeeklyHour {
	var hours []store.WeeklyHour
	for _, day := range days {
		hours = append(hours, store.WeeklyHour{
			ScheduleID:  1,
			DayOfWeek:   day,
			IsAvailable: true,
			StartTime:   "09:00",
			EndTime:     "17:00",
		})
	}
	return hours
}

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed.UTC()
}

func TestResolveWindows_WeeklyHours(t *testing.T) {
	// Monday 2026-01-05 through Tuesday 2026-01-06, Monday-only hours.
	from := mustUTC(t, "2026-01-05T00:00:00Z")
	to := mustUTC(t, "2026-01-06T23:00:00Z")

	days, err := ResolveWindows(nySchedule(), weekdayHours(1), nil, from, to, config.OverrideFallsBackToWeekly)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}

	if len(days) != 1 {
		t.Fatalf("expected 1 day with windows, got %d", len(days))
	}
	if days[0].Date != "2026-01-05" {
		t.Errorf("expected date 2026-01-05, got %s", days[0].Date)
	}
	// 09:00 EST is 14:00 UTC.
	wantStart := mustUTC(t, "2026-01-05T14:00:00Z")
	wantEnd := mustUTC(t, "2026-01-05T22:00:00Z")
	if !days[0].Windows[0].Start.Equal(wantStart) || !days[0].Windows[0].End.Equal(wantEnd) {
		t.Errorf("window = %v-%v, want %v-%v",
			days[0].Windows[0].Start, days[0].Windows[0].End, wantStart, wantEnd)
	}
}

func TestResolveWindows_UnavailableOverrideBlocksDay(t *testing.T) {
	from := mustUTC(t, "2026-01-05T00:00:00Z")
	to := mustUTC(t, "2026-01-05T23:00:00Z")

	overrides := []store.DateOverride{{
		ScheduleID:  1,
		Date:        "2026-01-05",
		IsAvailable: false,
	}}

	days, err := ResolveWindows(nySchedule(), weekdayHours(1), overrides, from, to, config.OverrideFallsBackToWeekly)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("expected no windows on blocked date, got %d days", len(days))
	}
}

func TestResolveWindows_OverrideReplacesWeeklyHours(t *testing.T) {
	from := mustUTC(t, "2026-01-05T00:00:00Z")
	to := mustUTC(t, "2026-01-05T23:00:00Z")

	overrides := []store.DateOverride{{
		ScheduleID:  1,
		Date:        "2026-01-05",
		IsAvailable: true,
		StartTime:   sql.NullString{String: "12:00", Valid: true},
		EndTime:     sql.NullString{String: "13:00", Valid: true},
	}}

	days, err := ResolveWindows(nySchedule(), weekdayHours(1), overrides, from, to, config.OverrideFallsBackToWeekly)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}
	if len(days) != 1 || len(days[0].Windows) != 1 {
		t.Fatalf("expected exactly one window, got %+v", days)
	}
	wantStart := mustUTC(t, "2026-01-05T17:00:00Z")
	if !days[0].Windows[0].Start.Equal(wantStart) {
		t.Errorf("override window start = %v, want %v", days[0].Windows[0].Start, wantStart)
	}
}

func TestResolveWindows_OpenOverrideBehavior(t *testing.T) {
	from := mustUTC(t, "2026-01-05T00:00:00Z")
	to := mustUTC(t, "2026-01-05T23:00:00Z")

	overrides := []store.DateOverride{{
		ScheduleID:  1,
		Date:        "2026-01-05",
		IsAvailable: true,
	}}

	t.Run("falls back to weekly hours", func(t *testing.T) {
		days, err := ResolveWindows(nySchedule(), weekdayHours(1), overrides, from, to, config.OverrideFallsBackToWeekly)
		if err != nil {
			t.Fatalf("ResolveWindows: %v", err)
		}
		if len(days) != 1 {
			t.Fatalf("expected 1 day, got %d", len(days))
		}
		wantStart := mustUTC(t, "2026-01-05T14:00:00Z")
		if !days[0].Windows[0].Start.Equal(wantStart) {
			t.Errorf("window start = %v, want weekly %v", days[0].Windows[0].Start, wantStart)
		}
	})

	t.Run("opens full day", func(t *testing.T) {
		days, err := ResolveWindows(nySchedule(), weekdayHours(1), overrides, from, to, config.OverrideOpensFullDay)
		if err != nil {
			t.Fatalf("ResolveWindows: %v", err)
		}
		if len(days) != 1 {
			t.Fatalf("expected 1 day, got %d", len(days))
		}
		// Midnight to midnight in New York.
		wantStart := mustUTC(t, "2026-01-05T05:00:00Z")
		wantEnd := mustUTC(t, "2026-01-06T05:00:00Z")
		if !days[0].Windows[0].Start.Equal(wantStart) || !days[0].Windows[0].End.Equal(wantEnd) {
			t.Errorf("window = %v-%v, want %v-%v",
				days[0].Windows[0].Start, days[0].Windows[0].End, wantStart, wantEnd)
		}
	})
}

func TestResolveWindows_DSTSpringForward(t *testing.T) {
	// 2026-03-08 is the US spring-forward date; 09:00 local is 13:00 UTC
	// after the shift (EDT), not 14:00 (EST).
	from := mustUTC(t, "2026-03-08T00:00:00Z")
	to := mustUTC(t, "2026-03-08T23:59:00Z")

	days, err := ResolveWindows(nySchedule(), weekdayHours(0), nil, from, to, config.OverrideFallsBackToWeekly)
	if err != nil {
		t.Fatalf("ResolveWindows: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	wantStart := mustUTC(t, "2026-03-08T13:00:00Z")
	if !days[0].Windows[0].Start.Equal(wantStart) {
		t.Errorf("DST window start = %v, want %v", days[0].Windows[0].Start, wantStart)
	}
}

func TestResolveWindows_InvalidInputs(t *testing.T) {
	from := mustUTC(t, "2026-01-05T00:00:00Z")

	if _, err := ResolveWindows(nySchedule(), nil, nil, from, from.AddDate(0, 0, -1), config.OverrideFallsBackToWeekly); err != ErrInvalidRange {
		t.Errorf("reversed range error = %v, want ErrInvalidRange", err)
	}

	sched := nySchedule()
	sched.Timezone = "Mars/Olympus"
	if _, err := ResolveWindows(sched, nil, nil, from, from, config.OverrideFallsBackToWeekly); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestValidateWeeklyHours(t *testing.T) {
	tests := []struct {
		name    string
		hours   []store.InsertWeeklyHourParams
		wantErr bool
	}{
		{
			name: "valid split shift",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 1, IsAvailable: true, StartTime: "09:00", EndTime: "12:00"},
				{DayOfWeek: 1, IsAvailable: true, StartTime: "13:00", EndTime: "17:00"},
			},
		},
		{
			name: "adjacent ranges allowed",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 2, IsAvailable: true, StartTime: "09:00", EndTime: "12:00"},
				{DayOfWeek: 2, IsAvailable: true, StartTime: "12:00", EndTime: "15:00"},
			},
		},
		{
			name: "overlapping ranges rejected",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 1, IsAvailable: true, StartTime: "09:00", EndTime: "13:00"},
				{DayOfWeek: 1, IsAvailable: true, StartTime: "12:00", EndTime: "17:00"},
			},
			wantErr: true,
		},
		{
			name: "overlap on different days allowed",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 1, IsAvailable: true, StartTime: "09:00", EndTime: "13:00"},
				{DayOfWeek: 2, IsAvailable: true, StartTime: "12:00", EndTime: "17:00"},
			},
		},
		{
			name: "end before start rejected",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 1, IsAvailable: true, StartTime: "17:00", EndTime: "09:00"},
			},
			wantErr: true,
		},
		{
			name: "unavailable rows ignored for overlap",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 1, IsAvailable: true, StartTime: "09:00", EndTime: "13:00"},
				{DayOfWeek: 1, IsAvailable: false, StartTime: "12:00", EndTime: "17:00"},
			},
		},
		{
			name: "bad day of week rejected",
			hours: []store.InsertWeeklyHourParams{
				{DayOfWeek: 7, IsAvailable: true, StartTime: "09:00", EndTime: "13:00"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeeklyHours(tt.hours)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWeeklyHours() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
