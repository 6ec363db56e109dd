// Package memory is an in-process schedule store with the same semantics as
// the PostgreSQL store. One mutex guards every check-then-write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
)

type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	tenants       map[string]model.Tenant
	services      map[string]model.Service
	professionals map[string]model.Professional
	rules         map[string]model.AvailabilityRule
	clients       map[string]model.Client
	bookings      map[string]model.Booking
}

func New() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		tenants:       make(map[string]model.Tenant),
		services:      make(map[string]model.Service),
		professionals: make(map[string]model.Professional),
		rules:         make(map[string]model.AvailabilityRule),
		clients:       make(map[string]model.Client),
		bookings:      make(map[string]model.Booking),
	}
}

func newID() string { return uuid.NewString() }

func (s *Store) CreateTenant(_ context.Context, t model.Tenant) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return model.Tenant{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateService(_ context.Context, svc model.Service) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[svc.TenantID]; !ok {
		return model.Service{}, storage.ErrNotFound
	}
	if svc.ID == "" {
		svc.ID = newID()
	}
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *Store) GetService(_ context.Context, tenantID, serviceID string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.TenantID != tenantID {
		return model.Service{}, storage.ErrNotFound
	}
	return svc, nil
}

func (s *Store) ListServices(_ context.Context, tenantID string) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.services {
		if svc.TenantID == tenantID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateProfessional(_ context.Context, p model.Professional) (model.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[p.TenantID]; !ok {
		return model.Professional{}, storage.ErrNotFound
	}
	for _, id := range p.ServiceIDs {
		if svc, ok := s.services[id]; !ok || svc.TenantID != p.TenantID {
			return model.Professional{}, fmt.Errorf("%w: service %s", storage.ErrNotFound, id)
		}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.ServiceIDs = dedupSorted(p.ServiceIDs)
	s.professionals[p.ID] = p
	return cloneProfessional(p), nil
}

func (s *Store) GetProfessional(_ context.Context, tenantID, professionalID string) (model.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.professionals[professionalID]
	if !ok || p.TenantID != tenantID {
		return model.Professional{}, storage.ErrNotFound
	}
	return cloneProfessional(p), nil
}

func (s *Store) ListQualifiedProfessionals(_ context.Context, tenantID, serviceID string) ([]model.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Professional
	for _, p := range s.professionals {
		if p.TenantID == tenantID && p.Performs(serviceID) {
			out = append(out, cloneProfessional(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateRule(_ context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scopeExists(rule.TenantID, rule.Scope) {
		return model.AvailabilityRule{}, storage.ErrNotFound
	}
	for _, existing := range s.rules {
		if existing.TenantID == rule.TenantID && existing.Overlaps(rule) {
			return model.AvailabilityRule{}, storage.ErrRuleOverlap
		}
	}
	if rule.ID == "" {
		rule.ID = newID()
	}
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *Store) scopeExists(tenantID string, scope model.Scope) bool {
	switch scope.Kind {
	case model.ServiceScope:
		svc, ok := s.services[scope.ID]
		return ok && svc.TenantID == tenantID
	case model.ProfessionalScope:
		p, ok := s.professionals[scope.ID]
		return ok && p.TenantID == tenantID
	}
	return false
}

func (s *Store) ListRules(_ context.Context, tenantID string, scope model.Scope) ([]model.AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AvailabilityRule
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.Scope == scope {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (s *Store) DeleteRule(_ context.Context, tenantID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return storage.ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *Store) DeleteService(_ context.Context, tenantID, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.TenantID != tenantID {
		return storage.ErrNotFound
	}
	if err := s.purgeBookings(tenantID, func(b model.Booking) bool { return b.ServiceID == serviceID }); err != nil {
		return err
	}
	s.purgeRules(tenantID, model.ServiceScopeOf(serviceID))
	for id, p := range s.professionals {
		if p.TenantID == tenantID && p.Performs(serviceID) {
			p.ServiceIDs = without(p.ServiceIDs, serviceID)
			s.professionals[id] = p
		}
	}
	delete(s.services, serviceID)
	return nil
}

func (s *Store) DeleteProfessional(_ context.Context, tenantID, professionalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.professionals[professionalID]
	if !ok || p.TenantID != tenantID {
		return storage.ErrNotFound
	}
	if err := s.purgeBookings(tenantID, func(b model.Booking) bool { return b.ProfessionalID == professionalID }); err != nil {
		return err
	}
	s.purgeRules(tenantID, model.ProfessionalScopeOf(professionalID))
	delete(s.professionals, professionalID)
	return nil
}

// purgeBookings deletes the cancelled bookings matching match, or nothing
// when any matching booking is in another status.
func (s *Store) purgeBookings(tenantID string, match func(model.Booking) bool) error {
	var cancelled []string
	blocking := 0
	for id, b := range s.bookings {
		if b.TenantID != tenantID || !match(b) {
			continue
		}
		if b.Status != model.StatusCancelled {
			blocking++
			continue
		}
		cancelled = append(cancelled, id)
	}
	if blocking > 0 {
		return fmt.Errorf("%w: %d booking(s) not cancelled", storage.ErrInUse, blocking)
	}
	for _, id := range cancelled {
		delete(s.bookings, id)
	}
	return nil
}

func (s *Store) purgeRules(tenantID string, scope model.Scope) {
	for id, r := range s.rules {
		if r.TenantID == tenantID && r.Scope == scope {
			delete(s.rules, id)
		}
	}
}

func (s *Store) FindOrCreateClient(_ context.Context, c model.Client) (model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[c.TenantID]; !ok {
		return model.Client{}, storage.ErrNotFound
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	for _, existing := range s.clients {
		if existing.TenantID == c.TenantID && existing.Email == c.Email {
			return existing, nil
		}
	}
	c.ID = newID()
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) CreateBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.IdempotencyKey != "" {
		for _, existing := range s.bookings {
			if existing.TenantID == b.TenantID && existing.IdempotencyKey == b.IdempotencyKey {
				return model.Booking{}, storage.ErrDuplicateKey
			}
		}
	}
	for _, existing := range s.bookings {
		if sameScope(existing, b) && existing.Status.Active() && existing.Start.Before(b.End) && b.Start.Before(existing.End) {
			return model.Booking{}, storage.ErrOverlap
		}
	}
	if b.ID == "" {
		b.ID = newID()
	}
	now := s.now()
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bookings[b.ID] = b
	return b, nil
}

func sameScope(a, b model.Booking) bool {
	if a.TenantID != b.TenantID || a.HasProfessional() != b.HasProfessional() {
		return false
	}
	if b.HasProfessional() {
		return a.ProfessionalID == b.ProfessionalID
	}
	return a.ServiceID == b.ServiceID
}

func (s *Store) GetBooking(_ context.Context, tenantID, bookingID string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok || b.TenantID != tenantID {
		return model.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBookingByIdempotencyKey(_ context.Context, tenantID, key string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.TenantID == tenantID && b.IdempotencyKey == key && key != "" {
			return b, nil
		}
	}
	return model.Booking{}, storage.ErrNotFound
}

func (s *Store) ListActiveBookings(_ context.Context, q model.BookingQuery) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(q.ProfessionalIDs))
	for _, id := range q.ProfessionalIDs {
		want[id] = true
	}
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != q.TenantID || !b.Status.Active() {
			continue
		}
		if !(b.Start.Before(q.To) && q.From.Before(b.End)) {
			continue
		}
		if len(want) > 0 {
			if !want[b.ProfessionalID] {
				continue
			}
		} else if b.ServiceID != q.ServiceID || b.HasProfessional() {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) ListBookings(_ context.Context, f storage.BookingFilter) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		switch {
		case b.TenantID != f.TenantID,
			f.ServiceID != "" && b.ServiceID != f.ServiceID,
			f.ProfessionalID != "" && b.ProfessionalID != f.ProfessionalID,
			f.Status != "" && b.Status != f.Status,
			!f.From.IsZero() && !b.End.After(f.From),
			!f.To.IsZero() && !b.Start.Before(f.To):
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TransitionBooking(_ context.Context, tenantID, bookingID string, next model.BookingStatus) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok || b.TenantID != tenantID {
		return model.Booking{}, storage.ErrNotFound
	}
	if !b.Status.CanTransitionTo(next) {
		return model.Booking{}, fmt.Errorf("%w: %s to %s", storage.ErrInvalidTransition, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = s.now()
	s.bookings[bookingID] = b
	return b, nil
}

func sortBookings(bs []model.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].Start.Equal(bs[j].Start) {
			return bs[i].Start.Before(bs[j].Start)
		}
		return bs[i].ID < bs[j].ID
	})
}

func cloneProfessional(p model.Professional) model.Professional {
	p.ServiceIDs = append([]string(nil), p.ServiceIDs...)
	return p
}

func dedupSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

func without(ids []string, drop string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
