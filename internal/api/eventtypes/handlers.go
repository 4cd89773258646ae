// internal/api/eventtypes/handlers.go
package eventtypes

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
	"github.com/meetlr/meetlr/internal/db/store"
)

var (
	queries  *store.Queries
	initOnce sync.Once
)

const eventTypeQueryTimeout = 5 * time.Second

var meetingTypes = map[string]bool{
	store.MeetingTypeOneOnOne: true,
	store.MeetingTypeGroup:    true,
	store.MeetingTypeFullDay:  true,
	store.MeetingTypeOneOff:   true,
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *store.Queries) {
	if q == nil {
		return
	}
	initOnce.Do(func() {
		queries = q
	})
}

type eventTypeRequest struct {
	UserID              int64  `json:"user_id,omitempty"`
	ScheduleID          int64  `json:"schedule_id"`
	Name                string `json:"name"`
	Slug                string `json:"slug,omitempty"`
	DurationMinutes     int64  `json:"duration_minutes"`
	BufferBeforeMinutes int64  `json:"buffer_before_minutes"`
	BufferAfterMinutes  int64  `json:"buffer_after_minutes"`
	MeetingType         string `json:"meeting_type"`
	MaxAttendeesPerSlot *int64 `json:"max_attendees_per_slot,omitempty"`
}

// POST /api/v1/event-types
func HandleEventTypeCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Event type handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req eventTypeRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		http.Error(w, "user_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := validateEventTypeInput(req); err != nil {
		writeValidationError(w, err)
		return
	}

	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = slugify(req.Name)
	}

	ctx, cancel := context.WithTimeout(r.Context(), eventTypeQueryTimeout)
	defer cancel()

	sched, err := queries.GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("schedule_id", req.ScheduleID).Msg("Failed to fetch schedule")
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		return
	}
	if sched.UserID != req.UserID {
		http.Error(w, "Schedule does not belong to this user", http.StatusBadRequest)
		return
	}

	created, err := queries.CreateEventType(ctx, store.CreateEventTypeParams{
		UserID:              req.UserID,
		ScheduleID:          req.ScheduleID,
		Name:                strings.TrimSpace(req.Name),
		Slug:                slug,
		DurationMinutes:     req.DurationMinutes,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		MeetingType:         req.MeetingType,
		MaxAttendeesPerSlot: apiutil.ToNullInt64(req.MaxAttendeesPerSlot),
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Failed to create event type")
		http.Error(w, "Failed to create event type", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("event_type_id", created.ID).Msg("Failed to write event type response")
	}
}

// GET /api/v1/event-types/{id}
func HandleEventTypeGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Event type handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	eventTypeID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "event type id")
	if err != nil {
		http.Error(w, "Invalid event type ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), eventTypeQueryTimeout)
	defer cancel()

	eventType, err := queries.GetEventType(ctx, eventTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Event type not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to fetch event type")
		http.Error(w, "Failed to fetch event type", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, eventType); err != nil {
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to write event type response")
	}
}

// GET /api/v1/users/{id}/event-types
func HandleEventTypesList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Event type handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	userID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "user id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), eventTypeQueryTimeout)
	defer cancel()

	eventTypes, err := queries.ListEventTypesByUser(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to list event types")
		http.Error(w, "Failed to list event types", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, eventTypes); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to write event types response")
	}
}

// PUT /api/v1/event-types/{id}
func HandleEventTypeUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Event type handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	eventTypeID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "event type id")
	if err != nil {
		http.Error(w, "Invalid event type ID", http.StatusBadRequest)
		return
	}

	var req eventTypeRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateEventTypeInput(req); err != nil {
		writeValidationError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), eventTypeQueryTimeout)
	defer cancel()

	existing, err := queries.GetEventType(ctx, eventTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Event type not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to fetch event type")
		http.Error(w, "Failed to fetch event type", http.StatusInternalServerError)
		return
	}

	sched, err := queries.GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("schedule_id", req.ScheduleID).Msg("Failed to fetch schedule")
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		return
	}
	if sched.UserID != existing.UserID {
		http.Error(w, "Schedule does not belong to this user", http.StatusBadRequest)
		return
	}

	updated, err := queries.UpdateEventType(ctx, store.UpdateEventTypeParams{
		ID:                  eventTypeID,
		Name:                strings.TrimSpace(req.Name),
		ScheduleID:          req.ScheduleID,
		DurationMinutes:     req.DurationMinutes,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		MeetingType:         req.MeetingType,
		MaxAttendeesPerSlot: apiutil.ToNullInt64(req.MaxAttendeesPerSlot),
	})
	if err != nil {
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to update event type")
		http.Error(w, "Failed to update event type", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to write event type response")
	}
}

// DELETE /api/v1/event-types/{id}
func HandleEventTypeDeactivate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Event type handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	eventTypeID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "event type id")
	if err != nil {
		http.Error(w, "Invalid event type ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), eventTypeQueryTimeout)
	defer cancel()

	if _, err := queries.GetEventType(ctx, eventTypeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Event type not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to fetch event type")
		http.Error(w, "Failed to fetch event type", http.StatusInternalServerError)
		return
	}

	if err := queries.DeactivateEventType(ctx, eventTypeID); err != nil {
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to deactivate event type")
		http.Error(w, "Failed to deactivate event type", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateEventTypeInput(req eventTypeRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return apiutil.FieldError{Field: "name", Reason: "is required"}
	case req.ScheduleID <= 0:
		return apiutil.FieldError{Field: "schedule_id", Reason: "must be a positive integer"}
	case req.DurationMinutes < 1:
		return apiutil.FieldError{Field: "duration_minutes", Reason: "must be at least 1"}
	case req.BufferBeforeMinutes < 0:
		return apiutil.FieldError{Field: "buffer_before_minutes", Reason: "must be 0 or greater"}
	case req.BufferAfterMinutes < 0:
		return apiutil.FieldError{Field: "buffer_after_minutes", Reason: "must be 0 or greater"}
	case !meetingTypes[req.MeetingType]:
		return apiutil.FieldError{Field: "meeting_type", Reason: "must be one of one_on_one, group, full_day, one_off"}
	}

	// Capacity is declared by group and full-day events and implicit
	// elsewhere.
	switch req.MeetingType {
	case store.MeetingTypeGroup, store.MeetingTypeFullDay:
		if req.MaxAttendeesPerSlot == nil || *req.MaxAttendeesPerSlot < 1 {
			return configurationError{field: "max_attendees_per_slot"}
		}
	default:
		if req.MaxAttendeesPerSlot != nil {
			return apiutil.FieldError{Field: "max_attendees_per_slot", Reason: "only applies to group and full_day event types"}
		}
	}
	return nil
}

// configurationError marks capacity misconfiguration, reported as 422 rather
// than a plain field error.
type configurationError struct {
	field string
}

func (e configurationError) Error() string {
	return e.field + " must be at least 1 for group and full_day event types"
}

func writeValidationError(w http.ResponseWriter, err error) {
	var confErr configurationError
	if errors.As(err, &confErr) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
