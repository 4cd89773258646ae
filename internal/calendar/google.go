package calendar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/meetlr/meetlr/internal/config"
	"github.com/meetlr/meetlr/internal/db/store"
)

const ProviderGoogle = "google"

// ErrNotConnected means the host has no active calendar connection. The
// checker treats it like any other provider failure: no conflicts.
var ErrNotConnected = errors.New("no calendar connection for user")

// GoogleProvider answers busy-time queries from the Google Calendar FreeBusy
// API using the OAuth token stored for the host.
type GoogleProvider struct {
	queries *store.Queries
	oauth   *oauth2.Config
}

func NewGoogleProvider(queries *store.Queries, cfg config.GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		queries: queries,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendarapi.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) GetBusyTimes(ctx context.Context, userID int64, from, to time.Time) ([]BusyInterval, error) {
	conn, err := p.queries.GetCalendarConnection(ctx, store.GetCalendarConnectionParams{
		UserID:   userID,
		Provider: ProviderGoogle,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load calendar connection: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(conn.TokenJSON), &token); err != nil {
		return nil, fmt.Errorf("parse stored calendar token: %w", err)
	}

	srv, err := calendarapi.NewService(ctx,
		option.WithTokenSource(p.oauth.TokenSource(ctx, &token)),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	calendarID := conn.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	resp, err := srv.Freebusy.Query(&calendarapi.FreeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []*calendarapi.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}

	intervals := make([]BusyInterval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", period.End, err)
		}
		intervals = append(intervals, BusyInterval{Start: start, End: end})
	}
	return intervals, nil
}
