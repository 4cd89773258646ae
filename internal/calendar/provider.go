// Package calendar consumes external-calendar busy time. Only the busy
// output is used here; token issuance and refresh belong to the provider's
// OAuth flow.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// BusyInterval is an opaque span of host busy time. A new booking's buffered
// window must never overlap one.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// BusyTimeProvider fetches busy intervals for a host. Implementations may
// fail or hang; callers go through Checker, which fails open.
type BusyTimeProvider interface {
	GetBusyTimes(ctx context.Context, userID int64, from, to time.Time) ([]BusyInterval, error)
}

// CheckResult is the outcome of a busy-time check.
type CheckResult struct {
	HasConflicts   bool   `json:"hasConflicts"`
	BusyTimeCount  int    `json:"busyTimeCount"`
	ConflictReason string `json:"conflictReason,omitempty"`
}

// Checker wraps a provider with a bounded timeout and a fail-open policy:
// booking availability outranks calendar completeness, so a provider error or
// timeout is logged and treated as "no conflicts found", never propagated.
type Checker struct {
	provider BusyTimeProvider
	timeout  time.Duration
}

func NewChecker(provider BusyTimeProvider, timeout time.Duration) *Checker {
	return &Checker{provider: provider, timeout: timeout}
}

// BusyTimes returns the host's busy intervals in [from, to). On any provider
// failure it returns nil intervals.
func (c *Checker) BusyTimes(ctx context.Context, userID int64, from, to time.Time) []BusyInterval {
	if c == nil || c.provider == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	intervals, err := c.provider.GetBusyTimes(lookupCtx, userID, from, to)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Int64("user_id", userID).
			Time("from", from).
			Time("to", to).
			Msg("Calendar busy-time lookup failed, continuing without calendar conflicts")
		return nil
	}
	return intervals
}

// Check reports whether the host has busy time overlapping [from, to).
func (c *Checker) Check(ctx context.Context, userID int64, from, to time.Time) CheckResult {
	intervals := c.BusyTimes(ctx, userID, from, to)

	conflicts := 0
	for _, interval := range intervals {
		if interval.Start.Before(to) && from.Before(interval.End) {
			conflicts++
		}
	}
	if conflicts == 0 {
		return CheckResult{BusyTimeCount: len(intervals)}
	}
	return CheckResult{
		HasConflicts:  true,
		BusyTimeCount: len(intervals),
		ConflictReason: fmt.Sprintf("%d calendar event(s) overlap %s - %s",
			conflicts, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)),
	}
}
