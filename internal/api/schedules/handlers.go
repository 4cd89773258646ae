// internal/api/schedules/handlers.go
package schedules

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
	appdb "github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/db/store"
)

var (
	queries  *store.Queries
	database *appdb.DB
	initOnce sync.Once
)

const scheduleQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(db *appdb.DB) {
	if db == nil {
		return
	}
	initOnce.Do(func() {
		queries = db.Queries
		database = db
	})
}

type scheduleRequest struct {
	UserID                  int64  `json:"user_id,omitempty"`
	Name                    string `json:"name"`
	Timezone                string `json:"timezone"`
	IsDefault               bool   `json:"is_default,omitempty"`
	MaxBookingsPerSlot      int64  `json:"max_bookings_per_slot"`
	MaxBookingDaysInFuture  int64  `json:"max_booking_days_in_future"`
	MinBookingNoticeMinutes int64  `json:"min_booking_notice_minutes"`
	SlotIntervalMinutes     int64  `json:"slot_interval_minutes"`
	AutoDetectInviteeTz     bool   `json:"auto_detect_invitee_timezone"`
}

type weeklyHourRequest struct {
	DayOfWeek   int64  `json:"day_of_week"`
	IsAvailable bool   `json:"is_available"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type weeklyHoursRequest struct {
	Hours []weeklyHourRequest `json:"hours"`
}

type overrideRequest struct {
	Date        string  `json:"date"`
	IsAvailable bool    `json:"is_available"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
}

// POST /api/v1/schedules
func HandleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req scheduleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		http.Error(w, "user_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := validateScheduleInput(req); err != nil {
		writeScheduleValidationError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	if _, err := queries.GetUser(ctx, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Failed to validate user")
		http.Error(w, "Failed to validate user", http.StatusInternalServerError)
		return
	}

	created, err := queries.CreateSchedule(ctx, store.CreateScheduleParams{
		UserID:                  req.UserID,
		Name:                    strings.TrimSpace(req.Name),
		Timezone:                req.Timezone,
		IsDefault:               req.IsDefault,
		MaxBookingsPerSlot:      req.MaxBookingsPerSlot,
		MaxBookingDaysInFuture:  req.MaxBookingDaysInFuture,
		MinBookingNoticeMinutes: req.MinBookingNoticeMinutes,
		SlotIntervalMinutes:     req.SlotIntervalMinutes,
		AutoDetectInviteeTz:     req.AutoDetectInviteeTz,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", req.UserID).Msg("Failed to create schedule")
		http.Error(w, "Failed to create schedule", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("schedule_id", created.ID).Msg("Failed to write schedule response")
	}
}

// PUT /api/v1/schedules/{id}
func HandleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	scheduleID, err := scheduleIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	var req scheduleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateScheduleInput(req); err != nil {
		writeScheduleValidationError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	updated, err := queries.UpdateSchedule(ctx, store.UpdateScheduleParams{
		ID:                      scheduleID,
		Name:                    strings.TrimSpace(req.Name),
		Timezone:                req.Timezone,
		MaxBookingsPerSlot:      req.MaxBookingsPerSlot,
		MaxBookingDaysInFuture:  req.MaxBookingDaysInFuture,
		MinBookingNoticeMinutes: req.MinBookingNoticeMinutes,
		SlotIntervalMinutes:     req.SlotIntervalMinutes,
		AutoDetectInviteeTz:     req.AutoDetectInviteeTz,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to update schedule")
		http.Error(w, "Failed to update schedule", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to write schedule response")
	}
}

// GET /api/v1/users/{id}/schedules
func HandleSchedulesList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	userID, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "user id")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	scheds, err := queries.ListSchedulesByUser(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to list schedules")
		http.Error(w, "Failed to list schedules", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, scheds); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to write schedules response")
	}
}

// PUT /api/v1/schedules/{id}/weekly-hours
func HandleWeeklyHoursReplace(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || database == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	scheduleID, err := scheduleIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	var req weeklyHoursRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := make([]store.InsertWeeklyHourParams, 0, len(req.Hours))
	for _, hour := range req.Hours {
		if hour.DayOfWeek < 0 || hour.DayOfWeek > 6 {
			http.Error(w, "day_of_week must be between 0 and 6", http.StatusBadRequest)
			return
		}
		startTime, err := apiutil.ParseClockField(hour.StartTime, "start_time")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		endTime, err := apiutil.ParseClockField(hour.EndTime, "end_time")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if endTime <= startTime {
			http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
			return
		}
		params = append(params, store.InsertWeeklyHourParams{
			ScheduleID:  scheduleID,
			DayOfWeek:   hour.DayOfWeek,
			IsAvailable: hour.IsAvailable,
			StartTime:   startTime,
			EndTime:     endTime,
		})
	}

	if err := availability.ValidateWeeklyHours(params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	var inserted []store.WeeklyHour
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		if _, err := qtx.GetSchedule(ctx, scheduleID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Schedule not found", Err: err}
			}
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to fetch schedule", Err: err}
		}

		if err := qtx.DeleteWeeklyHours(ctx, scheduleID); err != nil {
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to clear weekly hours", Err: err}
		}
		for _, p := range params {
			hour, err := qtx.InsertWeeklyHour(ctx, p)
			if err != nil {
				return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to insert weekly hour", Err: err}
			}
			inserted = append(inserted, hour)
		}
		return nil
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"hours": inserted}); err != nil {
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to write weekly hours response")
	}
}

// PUT /api/v1/schedules/{id}/overrides
func HandleOverrideUpsert(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	scheduleID, err := scheduleIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	var req overrideRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	date, err := apiutil.ParseDateField(req.Date, "date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Times are optional but must come as a pair.
	if (req.StartTime == nil) != (req.EndTime == nil) {
		http.Error(w, "start_time and end_time must be provided together", http.StatusBadRequest)
		return
	}

	var startTime, endTime sql.NullString
	if req.StartTime != nil {
		start, err := apiutil.ParseClockField(*req.StartTime, "start_time")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		end, err := apiutil.ParseClockField(*req.EndTime, "end_time")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if end <= start {
			http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
			return
		}
		startTime = sql.NullString{String: start, Valid: true}
		endTime = sql.NullString{String: end, Valid: true}
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	if _, err := queries.GetSchedule(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to fetch schedule")
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		return
	}

	override, err := queries.UpsertDateOverride(ctx, store.UpsertDateOverrideParams{
		ScheduleID:  scheduleID,
		Date:        date,
		IsAvailable: req.IsAvailable,
		StartTime:   startTime,
		EndTime:     endTime,
	})
	if err != nil {
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Str("date", date).Msg("Failed to upsert date override")
		http.Error(w, "Failed to save date override", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, override); err != nil {
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to write override response")
	}
}

// DELETE /api/v1/schedules/{id}/overrides/{date}
func HandleOverrideDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	scheduleID, err := scheduleIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}
	date, err := apiutil.ParseDateField(r.PathValue("date"), "date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	if err := queries.DeleteDateOverride(ctx, scheduleID, date); err != nil {
		logger.Error().Err(err).Int64("schedule_id", scheduleID).Str("date", date).Msg("Failed to delete date override")
		http.Error(w, "Failed to delete date override", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/schedules/{id}/default
func HandleSetDefaultSchedule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil || database == nil {
		logger.Error().Msg("Schedule handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	scheduleID, err := scheduleIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	// Clearing the old default and marking the new one must land together.
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		sched, err := qtx.GetSchedule(ctx, scheduleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Schedule not found", Err: err}
			}
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to fetch schedule", Err: err}
		}

		if err := qtx.SetDefaultSchedule(ctx, sched.UserID, scheduleID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Schedule not found", Err: err}
			}
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to set default schedule", Err: err}
		}
		return nil
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func scheduleIDFromRequest(r *http.Request) (int64, error) {
	return apiutil.ParsePositiveInt64Field(r.PathValue("id"), "schedule id")
}

func validateScheduleInput(req scheduleRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return apiutil.FieldError{Field: "name", Reason: "is required"}
	case req.MaxBookingsPerSlot < 1:
		return apiutil.FieldError{Field: "max_bookings_per_slot", Reason: "must be at least 1"}
	case req.MaxBookingDaysInFuture < 1:
		return apiutil.FieldError{Field: "max_booking_days_in_future", Reason: "must be at least 1"}
	case req.MinBookingNoticeMinutes < 0:
		return apiutil.FieldError{Field: "min_booking_notice_minutes", Reason: "must be 0 or greater"}
	case req.SlotIntervalMinutes < 0:
		return apiutil.FieldError{Field: "slot_interval_minutes", Reason: "must be 0 or greater"}
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil || strings.TrimSpace(req.Timezone) == "" {
		return errInvalidTimezone
	}
	return nil
}

var errInvalidTimezone = errors.New("timezone must be a valid IANA zone")

func writeScheduleValidationError(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidTimezone) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}
