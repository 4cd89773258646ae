// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/meetlr/meetlr/internal/api"
	"github.com/meetlr/meetlr/internal/api/bookings"
	"github.com/meetlr/meetlr/internal/api/eventtypes"
	"github.com/meetlr/meetlr/internal/api/invitations"
	"github.com/meetlr/meetlr/internal/api/schedules"
	"github.com/meetlr/meetlr/internal/api/slots"
	"github.com/meetlr/meetlr/internal/api/users"
	"github.com/meetlr/meetlr/internal/availability"
	"github.com/meetlr/meetlr/internal/booking"
	"github.com/meetlr/meetlr/internal/calendar"
	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db"
	"github.com/meetlr/meetlr/internal/ratelimit"
)

func newServer(cfg *config.Config, database *db.DB) *http.Server {
	router := http.NewServeMux()

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	provider := calendar.NewGoogleProvider(database.Queries, cfg.Google)
	checker := calendar.NewChecker(provider, cfg.Availability.CalendarTimeout.Std())
	availService := availability.NewService(database.Queries, checker, cfg.Availability)
	allocator := booking.NewAllocator(database)
	limiter := ratelimit.New(nil)

	slots.InitHandlers(database.Queries, availService, checker)
	bookings.InitHandlers(database, allocator, availService, limiter)
	schedules.InitHandlers(database)
	eventtypes.InitHandlers(database.Queries)
	invitations.InitHandlers(database.Queries, allocator, limiter, cfg.Availability)
	users.InitHandlers(database.Queries)

	registerRoutes(router)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Availability
	mux.HandleFunc("GET /api/v1/event-types/{id}/slots", slots.HandleAvailableSlots)
	mux.HandleFunc("GET /api/v1/slots/validate-notice", slots.HandleValidateNotice)
	mux.HandleFunc("GET /api/v1/users/{id}/busy-times", slots.HandleBusyTimes)

	// Bookings
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleBookingCreate)
	mux.HandleFunc("POST /api/v1/bookings/recurring", bookings.HandleRecurringBookingCreate)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", bookings.HandleBookingCancel)
	mux.HandleFunc("DELETE /api/v1/booking-series/{publicId}", bookings.HandleSeriesCancel)
	mux.HandleFunc("GET /api/v1/users/{slug}/bookings.ics", bookings.HandleBookingFeed)

	// Slot invitations
	mux.HandleFunc("POST /api/v1/invitations", invitations.HandleInvitationCreate)
	mux.HandleFunc("GET /api/v1/invitations/{token}", invitations.HandleInvitationGet)
	mux.HandleFunc("DELETE /api/v1/invitations/{token}", invitations.HandleInvitationCancel)

	// Schedules
	mux.HandleFunc("POST /api/v1/schedules", schedules.HandleScheduleCreate)
	mux.HandleFunc("PUT /api/v1/schedules/{id}", schedules.HandleScheduleUpdate)
	mux.HandleFunc("GET /api/v1/users/{id}/schedules", schedules.HandleSchedulesList)
	mux.HandleFunc("PUT /api/v1/schedules/{id}/weekly-hours", schedules.HandleWeeklyHoursReplace)
	mux.HandleFunc("PUT /api/v1/schedules/{id}/overrides", schedules.HandleOverrideUpsert)
	mux.HandleFunc("DELETE /api/v1/schedules/{id}/overrides/{date}", schedules.HandleOverrideDelete)
	mux.HandleFunc("POST /api/v1/schedules/{id}/default", schedules.HandleSetDefaultSchedule)

	// Event types
	mux.HandleFunc("POST /api/v1/event-types", eventtypes.HandleEventTypeCreate)
	mux.HandleFunc("GET /api/v1/event-types/{id}", eventtypes.HandleEventTypeGet)
	mux.HandleFunc("PUT /api/v1/event-types/{id}", eventtypes.HandleEventTypeUpdate)
	mux.HandleFunc("DELETE /api/v1/event-types/{id}", eventtypes.HandleEventTypeDeactivate)
	mux.HandleFunc("GET /api/v1/users/{id}/event-types", eventtypes.HandleEventTypesList)

	// Users
	mux.HandleFunc("POST /api/v1/users", users.HandleUserCreate)
	mux.HandleFunc("GET /api/v1/users/{slug}", users.HandleUserGet)
}
