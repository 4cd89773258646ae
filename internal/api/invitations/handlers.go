// internal/api/invitations/handlers.go
package invitations

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetlr/meetlr/internal/api/apiutil"
	"github.com/meetlr/meetlr/internal/availability"
	"github.com/meetlr/meetlr/internal/booking"
	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db/store"
	"github.com/meetlr/meetlr/internal/ratelimit"
)

var (
	queries   *store.Queries
	allocator *booking.Allocator
	limiter   *ratelimit.Limiter
	holdTTL   time.Duration
	initOnce  sync.Once
)

const invitationQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *store.Queries, alloc *booking.Allocator, rl *ratelimit.Limiter, cfg config.AvailabilityConfig) {
	if q == nil || alloc == nil {
		return
	}
	initOnce.Do(func() {
		queries = q
		allocator = alloc
		limiter = rl
		holdTTL = time.Duration(cfg.HoldExpiryMinutes) * time.Minute
	})
}

type invitationRequest struct {
	EventTypeID   int64  `json:"event_type_id"`
	StartTime     string `json:"start_time"`
	InviteeEmail  string `json:"invitee_email"`
	SpotsReserved int64  `json:"spots_reserved,omitempty"`
}

type invitationResponse struct {
	Token         string    `json:"token"`
	EventTypeID   int64     `json:"eventTypeId"`
	InviteeEmail  string    `json:"inviteeEmail"`
	SlotStartTime time.Time `json:"slotStartTime"`
	SlotEndTime   time.Time `json:"slotEndTime"`
	SpotsReserved int64     `json:"spotsReserved"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func toInvitationResponse(inv store.SlotInvitation) invitationResponse {
	return invitationResponse{
		Token:         inv.Token,
		EventTypeID:   inv.EventTypeID,
		InviteeEmail:  inv.InviteeEmail,
		SlotStartTime: inv.SlotStartTime,
		SlotEndTime:   inv.SlotEndTime,
		SpotsReserved: inv.SpotsReserved,
		Status:        inv.Status,
		ExpiresAt:     inv.ExpiresAt,
	}
}

// POST /api/v1/invitations
func HandleInvitationCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || allocator == nil {
		logger.Error().Msg("Invitation handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req invitationRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(req.InviteeEmail)
	if email == "" || !strings.Contains(email, "@") {
		http.Error(w, "invitee_email must be a valid email address", http.StatusBadRequest)
		return
	}
	startTime, err := apiutil.ParseTimestampField(req.StartTime, "start_time")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	spots := req.SpotsReserved
	if spots == 0 {
		spots = 1
	}
	if spots < 1 {
		http.Error(w, "spots_reserved must be at least 1", http.StatusBadRequest)
		return
	}

	if limiter != nil {
		ip := ratelimit.GetClientIP(r, false)
		if result := limiter.CheckHold(email, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("hold", email, ip, result.Reason)
			w.Header().Set("Retry-After", result.RetryAfter.Round(time.Second).String())
			http.Error(w, "Too many hold requests", http.StatusTooManyRequests)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), invitationQueryTimeout)
	defer cancel()

	eventType, err := queries.GetEventType(ctx, req.EventTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Event type not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("event_type_id", req.EventTypeID).Msg("Failed to fetch event type")
		http.Error(w, "Failed to fetch event type", http.StatusInternalServerError)
		return
	}
	if !eventType.IsActive {
		http.Error(w, "Event type not found", http.StatusNotFound)
		return
	}

	invitation, err := allocator.Reserve(ctx, booking.HoldRequest{
		EventType: eventType,
		Slot: availability.Slot{
			Start:     startTime,
			End:       startTime.Add(time.Duration(eventType.DurationMinutes) * time.Minute),
			IsFullDay: eventType.MeetingType == store.MeetingTypeFullDay,
		},
		InviteeEmail: email,
		Spots:        spots,
		TTL:          holdTTL,
	})
	if err != nil {
		var conflict booking.ConflictError
		if errors.As(err, &conflict) {
			_ = apiutil.WriteJSON(w, http.StatusConflict, map[string]any{
				"error": "Selected time is no longer available",
			})
			return
		}
		logger.Error().Err(err).Int64("event_type_id", eventType.ID).Msg("Failed to create slot invitation")
		http.Error(w, "Failed to create invitation", http.StatusInternalServerError)
		return
	}

	if limiter != nil {
		limiter.RecordHold(email, ratelimit.GetClientIP(r, false))
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, toInvitationResponse(invitation)); err != nil {
		logger.Error().Err(err).Str("token", invitation.Token).Msg("Failed to write invitation response")
	}
}

// GET /api/v1/invitations/{token}
func HandleInvitationGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Invitation handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		http.Error(w, "Invalid invitation token", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), invitationQueryTimeout)
	defer cancel()

	invitation, err := queries.GetSlotInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Invitation not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Msg("Failed to fetch invitation")
		http.Error(w, "Failed to fetch invitation", http.StatusInternalServerError)
		return
	}

	// Expiry is lazy; report an overdue pending hold as expired.
	resp := toInvitationResponse(invitation)
	if resp.Status == store.InvitationStatusPending && !invitation.ExpiresAt.After(time.Now().UTC()) {
		resp.Status = store.InvitationStatusExpired
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write invitation response")
	}
}

// DELETE /api/v1/invitations/{token}
func HandleInvitationCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Invitation handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		http.Error(w, "Invalid invitation token", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), invitationQueryTimeout)
	defer cancel()

	if _, err := queries.CancelInvitation(ctx, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Invitation not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Msg("Failed to cancel invitation")
		http.Error(w, "Failed to cancel invitation", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
