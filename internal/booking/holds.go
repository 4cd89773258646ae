package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetlr/meetlr/internal/availability"
	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
)

// HoldRequest provisionally reserves spots for a slot before the invitee
// commits. The hold keeps two invitees from being offered the same scarce
// slot at once.
type HoldRequest struct {
	EventType    store.EventType
	Slot         availability.Slot
	InviteeEmail string
	Spots        int64
	TTL          time.Duration
	Now          time.Time
}

// Reserve creates a slot invitation after re-checking that the requested
// spots still fit under capacity. Holds go through the allocator for the same
// reason bookings do: they consume capacity, so their creation races with
// everything else.
func (a *Allocator) Reserve(ctx context.Context, req HoldRequest) (store.SlotInvitation, error) {
	if req.Spots < 1 {
		return store.SlotInvitation{}, fmt.Errorf("a hold must reserve at least one spot")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var invitation store.SlotInvitation
	err := a.database.RunInTx(ctx, func(txdb *db.DB) error {
		qtx := txdb.Queries

		occupants, err := countOccupants(ctx, qtx, req.EventType, req.Slot, now)
		if err != nil {
			return err
		}
		if occupants+req.Spots > availability.Capacity(req.EventType) {
			return ConflictError{Slots: []availability.Slot{req.Slot}}
		}

		invitation, err = qtx.CreateSlotInvitation(ctx, store.CreateSlotInvitationParams{
			Token:         uuid.New().String(),
			EventTypeID:   req.EventType.ID,
			InviteeEmail:  req.InviteeEmail,
			SlotStartTime: req.Slot.Start,
			SlotEndTime:   req.Slot.End,
			SpotsReserved: req.Spots,
			ExpiresAt:     now.Add(req.TTL),
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("create slot invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.SlotInvitation{}, err
	}

	log.Ctx(ctx).Info().
		Int64("event_type_id", req.EventType.ID).
		Time("slot_start", req.Slot.Start).
		Int64("spots", req.Spots).
		Msg("Slot hold reserved")
	return invitation, nil
}
