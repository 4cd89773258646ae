// Package ical renders a host's confirmed bookings as an iCalendar feed so
// hosts can subscribe from their own calendar client.
package ical

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/meetlr/meetlr/internal/db/store"
)

const prodID = "-//meetlr//bookings//EN"

// Feed serializes confirmed bookings into an iCalendar document.
func Feed(host store.User, bookings []store.ConfirmedBookingRow, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetName(fmt.Sprintf("%s bookings", host.Name))

	for _, booking := range bookings {
		event := cal.AddEvent(fmt.Sprintf("booking-%d@meetlr", booking.ID))
		event.SetCreatedTime(booking.CreatedAt)
		event.SetDtStampTime(now)
		event.SetStartAt(booking.StartTime.UTC())
		event.SetEndAt(booking.EndTime.UTC())
		event.SetSummary(fmt.Sprintf("%s with %s", booking.EventTypeName, booking.InviteeName))
		event.SetDescription(fmt.Sprintf("Booked by %s <%s>", booking.InviteeName, booking.InviteeEmail))
		event.SetStatus(ical.ObjectStatusConfirmed)
	}

	return cal.Serialize()
}
