package availability

import (
	"fmt"
	"sort"
	"time"
)

// GridParams drives candidate slot generation. All times are UTC.
type GridParams struct {
	Duration        time.Duration
	Interval        time.Duration
	MinNotice       time.Duration
	MaxDaysInFuture int64
	Now             time.Time
	FullDay         bool
}

// GenerateSlots slices resolver windows into candidate slots. Deterministic
// for identical inputs: no clock reads, no I/O.
//
// Regular events step a cursor by Interval while cursor+Duration still fits
// the window. Full-day events collapse each date into a single pseudo-slot
// spanning the date's whole available range. Slots starting before
// Now+MinNotice or beyond Now+MaxDaysInFuture are discarded; a start exactly
// at Now+MinNotice survives.
func GenerateSlots(days []DayWindows, params GridParams) []Slot {
	earliest := params.Now.Add(params.MinNotice)
	latest := params.Now.AddDate(0, 0, int(params.MaxDaysInFuture))

	var slots []Slot
	for _, day := range days {
		if params.FullDay {
			if slot, ok := fullDaySlot(day); ok && admit(slot, earliest, latest) {
				slots = append(slots, slot)
			}
			continue
		}
		for _, window := range day.Windows {
			for cursor := window.Start; !cursor.Add(params.Duration).After(window.End); cursor = cursor.Add(params.Interval) {
				slot := Slot{Start: cursor, End: cursor.Add(params.Duration)}
				if admit(slot, earliest, latest) {
					slots = append(slots, slot)
				}
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

func fullDaySlot(day DayWindows) (Slot, bool) {
	if len(day.Windows) == 0 {
		return Slot{}, false
	}
	start := day.Windows[0].Start
	end := day.Windows[0].End
	for _, w := range day.Windows[1:] {
		if w.Start.Before(start) {
			start = w.Start
		}
		if w.End.After(end) {
			end = w.End
		}
	}
	return Slot{Start: start, End: end, IsFullDay: true}, true
}

func admit(slot Slot, earliest, latest time.Time) bool {
	if slot.Start.Before(earliest) {
		return false
	}
	if slot.Start.After(latest) {
		return false
	}
	return true
}

// NoticeValidation is the result of a minimum-notice check.
type NoticeValidation struct {
	IsValid      bool
	ErrorMessage string
}

// ValidateMinimumNotice reports whether a proposed start honors the booking
// notice window. Pure function, no I/O; a start exactly at now+notice is
// valid.
func ValidateMinimumNotice(startUTC time.Time, noticeMinutes int64, now time.Time) NoticeValidation {
	earliest := now.Add(time.Duration(noticeMinutes) * time.Minute)
	if startUTC.Before(earliest) {
		return NoticeValidation{
			IsValid: false,
			ErrorMessage: fmt.Sprintf(
				"bookings require at least %d minutes notice; earliest start is %s",
				noticeMinutes, earliest.UTC().Format(time.RFC3339),
			),
		}
	}
	return NoticeValidation{IsValid: true}
}
