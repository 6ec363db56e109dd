package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
)

// Transition moves a booking along PENDING -> CONFIRMED -> COMPLETED, to
// CANCELLED from either active status, or CONFIRMED -> NO_SHOW.
func (c *Committer) Transition(ctx context.Context, tenantID, bookingID, status string) (model.Booking, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(bookingID) == "" {
		return model.Booking{}, apperr.Validation("tenant_id and booking_id are required")
	}
	next, ok := model.ParseBookingStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !ok {
		return model.Booking{}, apperr.Validation("unknown status %q", status)
	}
	b, err := c.store.TransitionBooking(ctx, tenantID, bookingID, next)
	if err != nil {
		return model.Booking{}, storeErr(err, "booking "+bookingID)
	}
	c.logger.Info("booking status changed", "tenant_id", tenantID, "booking_id", bookingID, "status", string(next))
	return b, nil
}

func (c *Committer) Get(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	b, err := c.store.GetBooking(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, storeErr(err, "booking "+bookingID)
	}
	return b, nil
}

type ListFilter struct {
	ServiceID      string
	ProfessionalID string
	Status         string
	From           time.Time
	To             time.Time
	Limit          int
}

func (c *Committer) List(ctx context.Context, tenantID string, f ListFilter) ([]model.Booking, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperr.Validation("tenant_id is required")
	}
	filter := storage.BookingFilter{
		TenantID:       tenantID,
		ServiceID:      f.ServiceID,
		ProfessionalID: f.ProfessionalID,
		From:           f.From,
		To:             f.To,
		Limit:          f.Limit,
	}
	if f.Status != "" {
		st, ok := model.ParseBookingStatus(strings.ToUpper(f.Status))
		if !ok {
			return nil, apperr.Validation("unknown status %q", f.Status)
		}
		filter.Status = st
	}
	bookings, err := c.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, storeErr(err, "tenant "+tenantID)
	}
	return bookings, nil
}
