package store

import "context"

const upsertCalendarConnection = `
INSERT INTO calendar_connections (user_id, provider, calendar_id, token_json, status)
VALUES (?, ?, ?, ?, 'active')
ON CONFLICT (user_id, provider) DO UPDATE SET
	calendar_id = excluded.calendar_id,
	token_json = excluded.token_json,
	status = 'active'
RETURNING id, user_id, provider, calendar_id, token_json, status
`

type UpsertCalendarConnectionParams struct {
	UserID     int64
	Provider   string
	CalendarID string
	TokenJSON  string
}

func (q *Queries) UpsertCalendarConnection(ctx context.Context, arg UpsertCalendarConnectionParams) (CalendarConnection, error) {
	row := q.db.QueryRowContext(ctx, upsertCalendarConnection,
		arg.UserID, arg.Provider, arg.CalendarID, arg.TokenJSON,
	)
	var c CalendarConnection
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.CalendarID, &c.TokenJSON, &c.Status)
	return c, err
}

const getCalendarConnection = `
SELECT id, user_id, provider, calendar_id, token_json, status
FROM calendar_connections
WHERE user_id = ? AND provider = ? AND status = 'active'
`

type GetCalendarConnectionParams struct {
	UserID   int64
	Provider string
}

func (q *Queries) GetCalendarConnection(ctx context.Context, arg GetCalendarConnectionParams) (CalendarConnection, error) {
	row := q.db.QueryRowContext(ctx, getCalendarConnection, arg.UserID, arg.Provider)
	var c CalendarConnection
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.CalendarID, &c.TokenJSON, &c.Status)
	return c, err
}
