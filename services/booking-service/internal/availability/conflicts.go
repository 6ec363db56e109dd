package availability

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// BookingSource lists active bookings; implementations scope every query by tenant.
type BookingSource interface {
	ListActiveBookings(ctx context.Context, q model.BookingQuery) ([]model.Booking, error)
}

// ConflictIndex answers which existing bookings can block slots on a day.
type ConflictIndex struct {
	bookings BookingSource
	catalog  Catalog
}

func NewConflictIndex(bookings BookingSource, catalog Catalog) *ConflictIndex {
	return &ConflictIndex{bookings: bookings, catalog: catalog}
}

// FindOverlapping returns the PENDING and CONFIRMED bookings that intersect
// date's UTC day and belong to the selector's scope: the chosen professional,
// or every active professional qualified for the service together with the
// service's unassigned bookings.
func (c *ConflictIndex) FindOverlapping(ctx context.Context, tenantID, serviceID string, sel model.ProfessionalSelector, date time.Time) ([]model.Booking, error) {
	var professionalIDs []string
	if sel.IsAny() {
		candidates, err := activeCandidates(ctx, c.catalog, tenantID, serviceID)
		if err != nil {
			return nil, err
		}
		for _, p := range candidates {
			professionalIDs = append(professionalIDs, p.ID)
		}
	} else {
		professionalIDs = []string{sel.ID()}
	}
	return c.forScope(ctx, tenantID, serviceID, professionalIDs, sel.IsAny(), date)
}

// forScope lists the bookings of professionalIDs, or the service's
// unassigned bookings when professionalIDs is empty. withUnassigned adds the
// latter to a non-empty professional scope.
func (c *ConflictIndex) forScope(ctx context.Context, tenantID, serviceID string, professionalIDs []string, withUnassigned bool, date time.Time) ([]model.Booking, error) {
	day := dayWindow(date)
	q := model.BookingQuery{
		TenantID:        tenantID,
		ServiceID:       serviceID,
		ProfessionalIDs: professionalIDs,
		From:            day.Start,
		To:              day.End,
	}
	found, err := c.bookings.ListActiveBookings(ctx, q)
	if err != nil {
		return nil, err
	}
	if withUnassigned && len(professionalIDs) > 0 {
		q.ProfessionalIDs = nil
		unassigned, err := c.bookings.ListActiveBookings(ctx, q)
		if err != nil {
			return nil, err
		}
		found = append(found, unassigned...)
		sort.SliceStable(found, func(i, j int) bool { return found[i].Start.Before(found[j].Start) })
	}

	out := make([]model.Booking, 0, len(found))
	for _, b := range found {
		if b.TenantID != tenantID || !b.Status.Active() {
			continue
		}
		if !Overlaps(day, Interval{Start: b.Start, End: b.End}) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// BusyIntervals groups booking ranges by professional id; unassigned bookings
// are keyed by "".
func BusyIntervals(bookings []model.Booking) map[string][]Interval {
	busy := make(map[string][]Interval)
	for _, b := range bookings {
		busy[b.ProfessionalID] = append(busy[b.ProfessionalID], Interval{Start: b.Start, End: b.End})
	}
	return busy
}

// FreeProfessionals returns the candidates with no booking overlapping
// window, preserving candidate order. An unassigned booking overlapping
// window leaves nobody free.
func FreeProfessionals(candidates []model.Professional, bookings []model.Booking, window Interval) []model.Professional {
	busy := BusyIntervals(bookings)
	if overlapsAny(window, busy[""]) {
		return nil
	}
	var free []model.Professional
	for _, p := range candidates {
		if !overlapsAny(window, busy[p.ID]) {
			free = append(free, p)
		}
	}
	return free
}
