package availability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db/store"
)

const dateLayout = "2006-01-02"

// ResolveWindows merges a schedule's weekly hours with its date overrides for
// every calendar date in [from, to], producing per-day availability windows as
// UTC instants. Conversion goes through the schedule's IANA zone so DST
// transitions come out right.
//
// An override on a date fully replaces that date's weekly hours. An
// unavailable override blocks the date. An available override without times is
// ambiguous; openBehavior decides whether it falls back to weekly hours or
// opens the whole day.
func ResolveWindows(
	sched store.Schedule,
	hours []store.WeeklyHour,
	overrides []store.DateOverride,
	from, to time.Time,
	openBehavior config.OverrideBehavior,
) ([]DayWindows, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return nil, err
	}

	hoursByDay := make(map[int64][]store.WeeklyHour)
	for _, h := range hours {
		if !h.IsAvailable {
			continue
		}
		hoursByDay[h.DayOfWeek] = append(hoursByDay[h.DayOfWeek], h)
	}

	overrideByDate := make(map[string]store.DateOverride, len(overrides))
	for _, o := range overrides {
		overrideByDate[o.Date] = o
	}

	localFrom := from.In(loc)
	localTo := to.In(loc)
	first := time.Date(localFrom.Year(), localFrom.Month(), localFrom.Day(), 0, 0, 0, 0, loc)
	last := time.Date(localTo.Year(), localTo.Month(), localTo.Day(), 0, 0, 0, 0, loc)

	var days []DayWindows
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)

		var windows []Window
		if o, ok := overrideByDate[date]; ok {
			windows, err = overrideWindows(o, day, loc, hoursByDay, openBehavior)
		} else {
			windows, err = weeklyWindows(hoursByDay[int64(day.Weekday())], day, loc)
		}
		if err != nil {
			return nil, err
		}
		if len(windows) == 0 {
			continue
		}

		sort.Slice(windows, func(i, j int) bool {
			return windows[i].Start.Before(windows[j].Start)
		})
		days = append(days, DayWindows{Date: date, Windows: windows})
	}

	return days, nil
}

func overrideWindows(
	o store.DateOverride,
	day time.Time,
	loc *time.Location,
	hoursByDay map[int64][]store.WeeklyHour,
	openBehavior config.OverrideBehavior,
) ([]Window, error) {
	if !o.IsAvailable {
		return nil, nil
	}
	if o.StartTime.Valid && o.EndTime.Valid {
		w, err := windowOnDay(day, loc, o.StartTime.String, o.EndTime.String)
		if err != nil {
			return nil, err
		}
		return []Window{w}, nil
	}
	// Available override without times: behavior is configured, not guessed.
	if openBehavior == config.OverrideOpensFullDay {
		start := day
		end := day.AddDate(0, 0, 1)
		return []Window{{Start: start.UTC(), End: end.UTC()}}, nil
	}
	return weeklyWindows(hoursByDay[int64(day.Weekday())], day, loc)
}

func weeklyWindows(hours []store.WeeklyHour, day time.Time, loc *time.Location) ([]Window, error) {
	var windows []Window
	for _, h := range hours {
		w, err := windowOnDay(day, loc, h.StartTime, h.EndTime)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func windowOnDay(day time.Time, loc *time.Location, startHHMM, endHHMM string) (Window, error) {
	startH, startM, err := parseHHMM(startHHMM)
	if err != nil {
		return Window{}, err
	}
	endH, endM, err := parseHHMM(endHHMM)
	if err != nil {
		return Window{}, err
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), startH, startM, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), endH, endM, 0, 0, loc)
	if !end.After(start) {
		return Window{}, fmt.Errorf("window end %s must be after start %s", endHHMM, startHHMM)
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

func parseHHMM(value string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid time of day: %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid time of day: %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time of day: %q", value)
	}
	return hour, minute, nil
}

// ValidateWeeklyHours rejects malformed or overlapping ranges on the same day
// before they are persisted. Split shifts are allowed, overlaps are not.
func ValidateWeeklyHours(hours []store.InsertWeeklyHourParams) error {
	type span struct {
		start string
		end   string
	}
	byDay := make(map[int64][]span)
	for _, h := range hours {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return fmt.Errorf("day_of_week must be between 0 and 6")
		}
		if _, _, err := parseHHMM(h.StartTime); err != nil {
			return err
		}
		if _, _, err := parseHHMM(h.EndTime); err != nil {
			return err
		}
		if h.EndTime <= h.StartTime {
			return fmt.Errorf("end_time %q must be after start_time %q", h.EndTime, h.StartTime)
		}
		if !h.IsAvailable {
			continue
		}
		byDay[h.DayOfWeek] = append(byDay[h.DayOfWeek], span{start: h.StartTime, end: h.EndTime})
	}
	for day, spans := range byDay {
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		for i := 1; i < len(spans); i++ {
			if spans[i].start < spans[i-1].end {
				return fmt.Errorf("overlapping hours on day %d: %s-%s and %s-%s",
					day, spans[i-1].start, spans[i-1].end, spans[i].start, spans[i].end)
			}
		}
	}
	return nil
}
