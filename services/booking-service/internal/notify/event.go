// Package notify delivers booking notifications off the request path. The
// committer enqueues an Event and returns; a Dispatcher goroutine publishes
// it to the event bus and emails the client, retrying on its own.
package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
)

const EventBookingCreated = "booking.created.v1"

type Event struct {
	ID               string          `json:"event_id"`
	Type             string          `json:"event_type"`
	TenantID         string          `json:"tenant_id"`
	BookingID        string          `json:"booking_id"`
	ServiceID        string          `json:"service_id"`
	ServiceName      string          `json:"service_name"`
	ProfessionalID   string          `json:"professional_id,omitempty"`
	ProfessionalName string          `json:"professional_name,omitempty"`
	ClientName       string          `json:"client_name"`
	ClientEmail      string          `json:"client_email"`
	Start            time.Time       `json:"start_time"`
	End              time.Time       `json:"end_time"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	Status           string          `json:"status"`
	OccurredAt       time.Time       `json:"occurred_at"`

	trace otelx.Carried
}

// Email renders the confirmation message sent to the client.
func (e Event) Email() (subject, body string) {
	when := e.Start.UTC().Format("Mon 2 Jan 2006 15:04 MST")
	subject = fmt.Sprintf("Booking received: %s on %s", e.ServiceName, when)
	with := ""
	if e.ProfessionalName != "" {
		with = " with " + e.ProfessionalName
	}
	body = fmt.Sprintf(
		"Hi %s,\n\nWe have received your booking for %s%s on %s (until %s).\nStatus: %s\nTotal: %s\nReference: %s\n",
		e.ClientName, e.ServiceName, with, when, e.End.UTC().Format("15:04"), e.Status, e.TotalPrice.StringFixed(2), e.BookingID,
	)
	return subject, body
}
