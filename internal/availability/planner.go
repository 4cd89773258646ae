package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/meetlr/meetlr/internal/db/store"
)

// SuggestedSlot is an alternative offered for a conflicting occurrence.
type SuggestedSlot struct {
	Start        time.Time `json:"startTime"`
	End          time.Time `json:"endTime"`
	DisplayLabel string    `json:"displayLabel"`
}

// OccurrenceConflict describes one requested occurrence that cannot be booked
// as asked, with ranked nearby alternatives.
type OccurrenceConflict struct {
	OccurrenceNumber int             `json:"occurrenceNumber"`
	RequestedDate    string          `json:"requestedDate"`
	RequestedTime    string          `json:"requestedTime"`
	SuggestedSlots   []SuggestedSlot `json:"suggestedSlots"`
}

// PlanResult partitions a recurring/bulk request into confirmable occurrences
// and conflicts. Any conflict means no booking is created: a series only
// exists when every occurrence is simultaneously confirmable, re-validated
// again inside the allocator's transaction.
type PlanResult struct {
	HasConflicts bool
	Confirmable  []Slot
	Conflicts    []OccurrenceConflict
}

// PlanOccurrences independently evaluates each caller-selected start time
// through the availability pipeline. The caller's explicit list is trusted;
// no recurrence rule is expanded here.
func (s *Service) PlanOccurrences(ctx context.Context, eventType store.EventType, requested []time.Time, now time.Time) (PlanResult, error) {
	if len(requested) == 0 {
		return PlanResult{}, ErrNoOccurrences
	}
	if len(requested) > s.cfg.MaxOccurrences {
		return PlanResult{}, fmt.Errorf("%w: %d requested, limit is %d",
			ErrTooManyOccurrences, len(requested), s.cfg.MaxOccurrences)
	}

	sched, err := s.queries.GetSchedule(ctx, eventType.ScheduleID)
	if err != nil {
		return PlanResult{}, fmt.Errorf("load schedule %d: %w", eventType.ScheduleID, err)
	}
	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return PlanResult{}, err
	}

	result := PlanResult{}
	for i, start := range requested {
		status, dayStatuses, err := s.evaluateOccurrence(ctx, eventType, sched, start, now)
		if err != nil {
			return PlanResult{}, err
		}

		if status != nil && status.Available {
			result.Confirmable = append(result.Confirmable, status.Slot)
			continue
		}

		suggestions, err := s.suggestAlternatives(ctx, eventType, sched, start, dayStatuses, now, loc)
		if err != nil {
			return PlanResult{}, err
		}

		local := start.In(loc)
		result.Conflicts = append(result.Conflicts, OccurrenceConflict{
			OccurrenceNumber: i + 1,
			RequestedDate:    local.Format(dateLayout),
			RequestedTime:    local.Format("15:04"),
			SuggestedSlots:   suggestions,
		})
	}

	result.HasConflicts = len(result.Conflicts) > 0
	return result, nil
}

// evaluateOccurrence runs the pipeline for just the occurrence's day and
// locates the slot whose start matches the request. A missing slot (outside
// hours, notice window, or booking horizon) counts as a conflict.
func (s *Service) evaluateOccurrence(ctx context.Context, eventType store.EventType, sched store.Schedule, start time.Time, now time.Time) (*SlotStatus, []SlotStatus, error) {
	statuses, err := s.dayStatuses(ctx, eventType, sched, start, now)
	if err != nil {
		return nil, nil, err
	}
	for i := range statuses {
		if statuses[i].Start.Equal(start) {
			return &statuses[i], statuses, nil
		}
	}
	return nil, statuses, nil
}

func (s *Service) dayStatuses(ctx context.Context, eventType store.EventType, sched store.Schedule, at time.Time, now time.Time) ([]SlotStatus, error) {
	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return nil, err
	}
	local := at.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Second)

	slots, err := s.candidateSlots(ctx, eventType, sched, dayStart.UTC(), dayEnd.UTC(), now)
	if err != nil {
		return nil, err
	}
	occupancies, err := s.AggregateOccupancy(ctx, eventType, slots, now)
	if err != nil {
		return nil, err
	}
	return ApplyCapacity(eventType, slots, occupancies), nil
}

// suggestAlternatives searches forward/backward from the requested time on
// the same day, then adjacent days, ranked by absolute distance from the
// request.
func (s *Service) suggestAlternatives(ctx context.Context, eventType store.EventType, sched store.Schedule, requested time.Time, sameDay []SlotStatus, now time.Time, loc *time.Location) ([]SuggestedSlot, error) {
	if s.cfg.MaxSuggestions <= 0 {
		return nil, nil
	}

	suggestions := rankAvailable(sameDay, requested, s.cfg.MaxSuggestions, loc)
	if len(suggestions) > 0 {
		return suggestions, nil
	}

	for offset := 1; offset <= s.cfg.AdjacentDaySpan; offset++ {
		for _, delta := range []int{offset, -offset} {
			day := requested.AddDate(0, 0, delta)
			statuses, err := s.dayStatuses(ctx, eventType, sched, day, now)
			if err != nil {
				return nil, err
			}
			suggestions = rankAvailable(statuses, requested, s.cfg.MaxSuggestions, loc)
			if len(suggestions) > 0 {
				return suggestions, nil
			}
		}
	}
	return nil, nil
}

func rankAvailable(statuses []SlotStatus, requested time.Time, limit int, loc *time.Location) []SuggestedSlot {
	var available []SlotStatus
	for _, status := range statuses {
		if status.Available {
			available = append(available, status)
		}
	}
	sort.Slice(available, func(i, j int) bool {
		di := absDuration(available[i].Start.Sub(requested))
		dj := absDuration(available[j].Start.Sub(requested))
		if di == dj {
			return available[i].Start.Before(available[j].Start)
		}
		return di < dj
	})
	if len(available) > limit {
		available = available[:limit]
	}

	suggestions := make([]SuggestedSlot, 0, len(available))
	for _, status := range available {
		suggestions = append(suggestions, SuggestedSlot{
			Start:        status.Start,
			End:          status.End,
			DisplayLabel: status.Start.In(loc).Format("Mon, Jan 2 at 3:04 PM"),
		})
	}
	return suggestions
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
