package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusNoShow    BookingStatus = "NO_SHOW"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return st, true
	}
	return "", false
}

func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Booking struct {
	ID             string
	TenantID       string
	ServiceID      string
	ProfessionalID string
	ClientID       string
	Start          time.Time
	End            time.Time
	Status         BookingStatus
	TotalPrice     decimal.Decimal
	Notes          string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasProfessional reports whether the booking is pinned to a professional.
func (b Booking) HasProfessional() bool { return b.ProfessionalID != "" }

// BookingQuery selects active bookings intersecting [From, To). When
// ProfessionalIDs is non-empty it matches bookings of those professionals for
// any service; otherwise it matches bookings of ServiceID that have no
// professional.
type BookingQuery struct {
	TenantID        string
	ServiceID       string
	ProfessionalIDs []string
	From            time.Time
	To              time.Time
}
