// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meetlr/meetlr/internal/api/apiutil"
	"github.com/meetlr/meetlr/internal/availability"
	"github.com/meetlr/meetlr/internal/booking"
	appdb "github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
	"github.com/meetlr/meetlr/internal/ical"
	"github.com/meetlr/meetlr/internal/ratelimit"
)

var (
	queries   *store.Queries
	database  *appdb.DB
	allocator *booking.Allocator
	avail     *availability.Service
	limiter   *ratelimit.Limiter
	initOnce  sync.Once
)

const (
	bookingQueryTimeout = 5 * time.Second
	defaultPhoneRegion  = "US"
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(db *appdb.DB, alloc *booking.Allocator, service *availability.Service, rl *ratelimit.Limiter) {
	if db == nil || alloc == nil || service == nil {
		return
	}
	initOnce.Do(func() {
		queries = db.Queries
		database = db
		allocator = alloc
		avail = service
		limiter = rl
	})
}

type bookingRequest struct {
	EventTypeID     int64  `json:"event_type_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time,omitempty"`
	InviteeName     string `json:"invitee_name"`
	InviteeEmail    string `json:"invitee_email"`
	InviteePhone    string `json:"invitee_phone,omitempty"`
	InvitationToken string `json:"invitation_token,omitempty"`
}

type recurringRequest struct {
	EventTypeID  int64    `json:"event_type_id"`
	Occurrences  []string `json:"occurrences"`
	InviteeName  string   `json:"invitee_name"`
	InviteeEmail string   `json:"invitee_email"`
	InviteePhone string   `json:"invitee_phone,omitempty"`
}

type bookingResponse struct {
	ID           int64     `json:"id"`
	EventTypeID  int64     `json:"eventTypeId"`
	SeriesID     *int64    `json:"seriesId,omitempty"`
	InviteeName  string    `json:"inviteeName"`
	InviteeEmail string    `json:"inviteeEmail"`
	InviteePhone *string   `json:"inviteePhone,omitempty"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toBookingResponse(b store.Booking) bookingResponse {
	resp := bookingResponse{
		ID:           b.ID,
		EventTypeID:  b.EventTypeID,
		InviteeName:  b.InviteeName,
		InviteeEmail: b.InviteeEmail,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		Status:       b.Status,
		CreatedAt:    b.CreatedAt,
	}
	if b.SeriesID.Valid {
		id := b.SeriesID.Int64
		resp.SeriesID = &id
	}
	resp.InviteePhone = apiutil.FromNullString(b.InviteePhone)
	return resp
}

// POST /api/v1/bookings
func HandleBookingCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || allocator == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req bookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	invitee, err := buildInvitee(req.InviteeName, req.InviteeEmail, req.InviteePhone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !checkBookingLimit(w, r, invitee.Email) {
		return
	}

	startTime, err := apiutil.ParseTimestampField(req.StartTime, "start_time")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	eventType, sched, ok := loadEventType(ctx, w, logger, req.EventTypeID)
	if !ok {
		return
	}

	endTime := startTime.Add(time.Duration(eventType.DurationMinutes) * time.Minute)
	if strings.TrimSpace(req.EndTime) != "" {
		endTime, err = apiutil.ParseTimestampField(req.EndTime, "end_time")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !endTime.After(startTime) {
			http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
			return
		}
	}

	now := time.Now().UTC()
	if notice := availability.ValidateMinimumNotice(startTime, sched.MinBookingNoticeMinutes, now); !notice.IsValid {
		http.Error(w, notice.ErrorMessage, http.StatusBadRequest)
		return
	}

	result, err := allocator.Allocate(ctx, booking.AllocationRequest{
		EventType: eventType,
		Slots: []availability.Slot{{
			Start:     startTime,
			End:       endTime,
			IsFullDay: eventType.MeetingType == store.MeetingTypeFullDay,
		}},
		Invitee:         invitee,
		InvitationToken: strings.TrimSpace(req.InvitationToken),
		Now:             now,
	})
	if err != nil {
		writeAllocationError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	if err := apiutil.WriteJSON(w, status, toBookingResponse(result.Bookings[0])); err != nil {
		logger.Error().Err(err).Int64("booking_id", result.Bookings[0].ID).Msg("Failed to write booking response")
	}
}

// POST /api/v1/bookings/recurring
func HandleRecurringBookingCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || allocator == nil || avail == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req recurringRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	invitee, err := buildInvitee(req.InviteeName, req.InviteeEmail, req.InviteePhone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !checkBookingLimit(w, r, invitee.Email) {
		return
	}

	occurrences := make([]time.Time, 0, len(req.Occurrences))
	for _, raw := range req.Occurrences {
		occurrence, err := apiutil.ParseTimestampField(raw, "occurrences")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		occurrences = append(occurrences, occurrence)
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	eventType, _, ok := loadEventType(ctx, w, logger, req.EventTypeID)
	if !ok {
		return
	}

	now := time.Now().UTC()
	plan, err := avail.PlanOccurrences(ctx, eventType, occurrences, now)
	if err != nil {
		switch {
		case errors.Is(err, availability.ErrNoOccurrences), errors.Is(err, availability.ErrTooManyOccurrences):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, availability.ErrInvalidTimezone):
			http.Error(w, "Schedule has an invalid time zone", http.StatusUnprocessableEntity)
		default:
			logger.Error().Err(err).Int64("event_type_id", eventType.ID).Msg("Failed to plan occurrences")
			http.Error(w, "Failed to plan occurrences", http.StatusInternalServerError)
		}
		return
	}

	if plan.HasConflicts {
		if err := apiutil.WriteJSON(w, http.StatusConflict, map[string]any{
			"hasConflicts":           true,
			"conflictingOccurrences": plan.Conflicts,
		}); err != nil {
			logger.Error().Err(err).Int64("event_type_id", eventType.ID).Msg("Failed to write conflict response")
		}
		return
	}

	result, err := allocator.Allocate(ctx, booking.AllocationRequest{
		EventType: eventType,
		Slots:     plan.Confirmable,
		Invitee:   invitee,
		Now:       now,
	})
	if err != nil {
		writeAllocationError(w, r, err)
		return
	}

	responses := make([]bookingResponse, 0, len(result.Bookings))
	for _, b := range result.Bookings {
		responses = append(responses, toBookingResponse(b))
	}
	payload := map[string]any{"bookings": responses}
	if result.Series != nil {
		payload["seriesId"] = result.Series.PublicID
	}
	if err := apiutil.WriteJSON(w, http.StatusCreated, payload); err != nil {
		logger.Error().Err(err).Int64("event_type_id", eventType.ID).Msg("Failed to write series response")
	}
}

// DELETE /api/v1/bookings/{id}
func HandleBookingCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	bookingID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "booking id")
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	cancelled, err := queries.CancelBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Booking not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("booking_id", bookingID).Msg("Failed to cancel booking")
		http.Error(w, "Failed to cancel booking", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("booking_id", cancelled.ID).Msg("Booking cancelled")
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/booking-series/{publicId}
func HandleSeriesCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || database == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	publicID := strings.TrimSpace(r.PathValue("publicId"))
	if publicID == "" {
		http.Error(w, "Invalid series ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	var cancelled int64
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		series, err := qtx.GetBookingSeriesByPublicID(ctx, publicID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Series not found", Err: err}
			}
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to fetch series", Err: err}
		}

		if err := qtx.UpdateBookingSeriesStatus(ctx, series.ID, store.SeriesStatusCancelled); err != nil {
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to cancel series", Err: err}
		}

		cancelled, err = qtx.CancelSeriesBookings(ctx, store.CancelSeriesBookingsParams{
			SeriesID: series.ID,
			After:    time.Now().UTC(),
		})
		if err != nil {
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to cancel series bookings", Err: err}
		}
		return nil
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, err)
		return
	}

	logger.Info().Str("series_id", publicID).Int64("cancelled_bookings", cancelled).Msg("Series cancelled")
	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"seriesId":          publicID,
		"cancelledBookings": cancelled,
	}); err != nil {
		logger.Error().Err(err).Str("series_id", publicID).Msg("Failed to write series cancel response")
	}
}

// GET /api/v1/users/{slug}/bookings.ics
func HandleBookingFeed(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	slug := strings.TrimSpace(r.PathValue("slug"))
	if slug == "" {
		http.Error(w, "Invalid user slug", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	user, err := queries.GetUserBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Str("slug", slug).Msg("Failed to fetch user")
		http.Error(w, "Failed to fetch user", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	rows, err := queries.ListConfirmedBookingsByUser(ctx, store.ListConfirmedBookingsByUserParams{
		UserID: user.ID,
		After:  now,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list confirmed bookings")
		http.Error(w, "Failed to list bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(ical.Feed(user, rows, now))); err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to write calendar feed")
	}
}

func buildInvitee(name, email, phone string) (booking.Invitee, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name == "":
		return booking.Invitee{}, apiutil.FieldError{Field: "invitee_name", Reason: "is required"}
	case email == "" || !strings.Contains(email, "@"):
		return booking.Invitee{}, apiutil.FieldError{Field: "invitee_email", Reason: "must be a valid email address"}
	}

	invitee := booking.Invitee{Name: name, Email: email}
	if raw := strings.TrimSpace(phone); raw != "" {
		parsed, err := phonenumbers.Parse(raw, defaultPhoneRegion)
		if err != nil || !phonenumbers.IsValidNumber(parsed) {
			return booking.Invitee{}, apiutil.FieldError{Field: "invitee_phone", Reason: "must be a valid phone number"}
		}
		invitee.Phone = phonenumbers.Format(parsed, phonenumbers.E164)
	}
	return invitee, nil
}

func checkBookingLimit(w http.ResponseWriter, r *http.Request, email string) bool {
	if limiter == nil {
		return true
	}
	ip := ratelimit.GetClientIP(r, false)
	if result := limiter.CheckBooking(email, ip); !result.Allowed {
		ratelimit.LogRateLimitExceeded("booking", email, ip, result.Reason)
		w.Header().Set("Retry-After", result.RetryAfter.Round(time.Second).String())
		http.Error(w, "Too many booking attempts", http.StatusTooManyRequests)
		return false
	}
	limiter.RecordBooking(email, ip)
	return true
}

func loadEventType(ctx context.Context, w http.ResponseWriter, logger *zerolog.Logger, eventTypeID int64) (store.EventType, store.Schedule, bool) {
	if eventTypeID <= 0 {
		http.Error(w, "event_type_id must be a positive integer", http.StatusBadRequest)
		return store.EventType{}, store.Schedule{}, false
	}

	eventType, err := queries.GetEventType(ctx, eventTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Event type not found", http.StatusNotFound)
			return store.EventType{}, store.Schedule{}, false
		}
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to fetch event type")
		http.Error(w, "Failed to fetch event type", http.StatusInternalServerError)
		return store.EventType{}, store.Schedule{}, false
	}
	if !eventType.IsActive {
		http.Error(w, "Event type not found", http.StatusNotFound)
		return store.EventType{}, store.Schedule{}, false
	}

	sched, err := queries.GetSchedule(ctx, eventType.ScheduleID)
	if err != nil {
		logger.Error().Err(err).Int64("schedule_id", eventType.ScheduleID).Msg("Failed to fetch schedule")
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		return store.EventType{}, store.Schedule{}, false
	}
	return eventType, sched, true
}

func writeAllocationError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	var conflict booking.ConflictError
	if errors.As(err, &conflict) {
		slots := make([]map[string]any, 0, len(conflict.Slots))
		for _, slot := range conflict.Slots {
			slots = append(slots, map[string]any{
				"startTime": slot.Start,
				"endTime":   slot.End,
			})
		}
		_ = apiutil.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":            "Selected time is no longer available",
			"conflictingSlots": slots,
		})
		return
	}
	if errors.Is(err, booking.ErrInvitationInvalid) {
		http.Error(w, "Invitation is expired or cancelled", http.StatusGone)
		return
	}

	logger.Error().Err(err).Msg("Failed to allocate booking")
	http.Error(w, "Failed to create booking", http.StatusInternalServerError)
}
