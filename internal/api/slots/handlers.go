// internal/api/slots/handlers.go
package slots

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
	"github.com/meetlr/meetlr/internal/calendar"
	"github.com/meetlr/meetlr/internal/db/store"
)

var (
	queries  *store.Queries
	avail    *availability.Service
	checker  *calendar.Checker
	initOnce sync.Once
)

const slotQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *store.Queries, service *availability.Service, busy *calendar.Checker) {
	if q == nil || service == nil {
		return
	}
	initOnce.Do(func() {
		queries = q
		avail = service
		checker = busy
	})
}

type slotResponse struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	IsAvailable     bool      `json:"isAvailable"`
	IsFullDay       bool      `json:"isFullDay"`
	CurrentBookings int64     `json:"currentBookings"`
	MaxCapacity     int64     `json:"maxCapacity"`
	RemainingSpots  int64     `json:"remainingSpots"`
}

type slotsResponse struct {
	Slots               []slotResponse `json:"slots"`
	TimeZone            string         `json:"timeZone"`
	MeetingType         string         `json:"meetingType"`
	IsFullDayEvent      bool           `json:"isFullDayEvent"`
	MaxAttendeesPerSlot int64          `json:"maxAttendeesPerSlot"`
	DurationMinutes     int64          `json:"durationMinutes"`
}

// GET /api/v1/event-types/{id}/slots?start_date=...&end_date=...&timezone=...
func HandleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || avail == nil {
		logger.Error().Msg("Slot handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	eventTypeID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "event type id")
	if err != nil {
		http.Error(w, "Invalid event type ID", http.StatusBadRequest)
		return
	}

	startDate, err := apiutil.ParseDateField(r.URL.Query().Get("start_date"), "start_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	endDate, err := apiutil.ParseDateField(r.URL.Query().Get("end_date"), "end_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if endDate < startDate {
		http.Error(w, "end_date must not be before start_date", http.StatusBadRequest)
		return
	}

	// Range boundaries are interpreted in the invitee's time zone when one
	// is supplied, otherwise UTC. Slot generation itself always runs in the
	// schedule's zone.
	loc := time.UTC
	if tz := strings.TrimSpace(r.URL.Query().Get("timezone")); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			http.Error(w, "timezone must be a valid IANA zone", http.StatusUnprocessableEntity)
			return
		}
	}

	from, _ := time.ParseInLocation("2006-01-02", startDate, loc)
	to, _ := time.ParseInLocation("2006-01-02", endDate, loc)
	to = to.AddDate(0, 0, 1)

	ctx, cancel := context.WithTimeout(r.Context(), slotQueryTimeout)
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
	if !eventType.IsActive {
		http.Error(w, "Event type not found", http.StatusNotFound)
		return
	}

	result, err := avail.AvailableSlots(ctx, eventType, from.UTC(), to.UTC(), time.Now().UTC())
	if err != nil {
		if errors.Is(err, availability.ErrInvalidTimezone) {
			http.Error(w, "Schedule has an invalid time zone", http.StatusUnprocessableEntity)
			return
		}
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to compute available slots")
		http.Error(w, "Failed to compute available slots", http.StatusInternalServerError)
		return
	}

	resp := slotsResponse{
		Slots:               make([]slotResponse, 0, len(result.Slots)),
		TimeZone:            result.TimeZone,
		MeetingType:         result.MeetingType,
		IsFullDayEvent:      result.IsFullDayEvent,
		MaxAttendeesPerSlot: result.MaxAttendees,
		DurationMinutes:     result.DurationMinutes,
	}
	for _, status := range result.Slots {
		resp.Slots = append(resp.Slots, slotResponse{
			StartTime:       status.Start,
			EndTime:         status.End,
			IsAvailable:     status.Available,
			IsFullDay:       status.IsFullDay,
			CurrentBookings: status.CurrentBookings,
			MaxCapacity:     status.MaxCapacity,
			RemainingSpots:  status.RemainingSpots,
		})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("event_type_id", eventTypeID).Msg("Failed to write slots response")
	}
}

// GET /api/v1/slots/validate-notice?start_time=...&notice_minutes=...
func HandleValidateNotice(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	startTime, err := apiutil.ParseTimestampField(r.URL.Query().Get("start_time"), "start_time")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	noticeMinutes, err := apiutil.ParseNonNegativeInt64Field(r.URL.Query().Get("notice_minutes"), "notice_minutes")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	validation := availability.ValidateMinimumNotice(startTime, noticeMinutes, time.Now().UTC())
	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"isValid":      validation.IsValid,
		"errorMessage": validation.ErrorMessage,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write notice validation response")
	}
}

// GET /api/v1/users/{id}/busy-times?start_time=...&end_time=...
func HandleBusyTimes(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if checker == nil {
		logger.Error().Msg("Slot handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	userID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "user id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	startTime, err := apiutil.ParseTimestampField(r.URL.Query().Get("start_time"), "start_time")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	endTime, err := apiutil.ParseTimestampField(r.URL.Query().Get("end_time"), "end_time")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	result := checker.Check(r.Context(), userID, startTime, endTime)
	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to write busy times response")
	}
}
