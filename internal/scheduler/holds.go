package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetlr/meetlr/internal/db"
)

// SweepHolds marks expired slot invitations so occupancy reports and admin
// listings stop showing them. Slot math already ignores expired holds at read
// time; this keeps the rows honest.
func SweepHolds(ctx context.Context, database *db.DB, now time.Time) error {
	expired, err := database.Queries.ExpireInvitations(ctx, now.UTC())
	if err != nil {
		return fmt.Errorf("expire invitations: %w", err)
	}
	if expired > 0 {
		log.Ctx(ctx).Info().
			Int64("expired", expired).
			Msg("Expired slot invitations")
	}
	return nil
}

// SweepSeries closes out recurring series whose last occurrence is in the
// past, so they no longer appear active.
func SweepSeries(ctx context.Context, database *db.DB, now time.Time) error {
	completed, err := database.Queries.CompleteFinishedSeries(ctx, now.UTC())
	if err != nil {
		return fmt.Errorf("complete series: %w", err)
	}
	if completed > 0 {
		log.Ctx(ctx).Info().
			Int64("completed", completed).
			Msg("Completed finished booking series")
	}
	return nil
}
