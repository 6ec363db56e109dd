package storage

import (
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// BookingFilter narrows a booking listing. Zero fields are ignored.
type BookingFilter struct {
	TenantID       string
	ServiceID      string
	ProfessionalID string
	Status         model.BookingStatus
	From           time.Time
	To             time.Time
	Limit          int
}

const DefaultListLimit = 50

func (f BookingFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return DefaultListLimit
	}
	return f.Limit
}
