package availability

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
)

const (
	ReasonBooked         = "booked"
	ReasonPast           = "past"
	ReasonNoProfessional = "no professional available"
)

// Catalog is the read side of the schedule store.
type Catalog interface {
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
	GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error)
	GetProfessional(ctx context.Context, tenantID, professionalID string) (model.Professional, error)
	ListQualifiedProfessionals(ctx context.Context, tenantID, serviceID string) ([]model.Professional, error)
	ListRules(ctx context.Context, tenantID string, scope model.Scope) ([]model.AvailabilityRule, error)
}

type Store interface {
	Catalog
	BookingSource
}

type Query struct {
	TenantID     string
	ServiceID    string
	Professional model.ProfessionalSelector
	Date         time.Time
	Now          time.Time
}

// DecoratedSlot is a candidate slot with its bookability. Professionals lists
// the free professionals when the query asked for any professional.
type DecoratedSlot struct {
	Time          model.ClockTime
	Start         time.Time
	End           time.Time
	Available     bool
	Reason        string
	Professionals []model.Professional
}

// Target is a resolved (tenant, service, professional selector) with the
// rules that drive slot generation.
type Target struct {
	Tenant       model.Tenant
	Service      model.Service
	Professional *model.Professional
	// Candidates are the active qualified professionals, ordered by name then
	// id. Only set for an any-professional target.
	Candidates []model.Professional
	Rules      []model.AvailabilityRule

	own map[string]model.WeeklySchedule
}

func (t Target) Duration() time.Duration {
	return time.Duration(t.Service.DurationMinutes) * time.Minute
}

// Any reports whether the target lets the engine pick a professional.
func (t Target) Any() bool { return t.Professional == nil }

type Option func(*Resolver)

// WithInterval overrides the step between slot starts.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

type Resolver struct {
	catalog   Catalog
	conflicts *ConflictIndex
	interval  time.Duration
	tracer    trace.Tracer
}

func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:   store,
		conflicts: NewConflictIndex(store, store),
		interval:  DefaultInterval,
		tracer:    otel.Tracer("availability"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve lists the slots for q.Date, ascending by time, one entry per time.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]DecoratedSlot, error) {
	ctx, span := r.tracer.Start(ctx, "availability.resolve", trace.WithAttributes(
		attribute.String("tenant_id", q.TenantID),
		attribute.String("service_id", q.ServiceID),
		attribute.String("professional", q.Professional.String()),
		attribute.String("date", FormatDate(q.Date)),
	))
	defer span.End()

	target, err := r.Prepare(ctx, q.TenantID, q.ServiceID, q.Professional)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	slots, err := r.Evaluate(ctx, target, q.Date, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// Prepare looks up the tenant, service and professional and loads the
// effective rules.
func (r *Resolver) Prepare(ctx context.Context, tenantID, serviceID string, sel model.ProfessionalSelector) (Target, error) {
	if tenantID == "" || serviceID == "" {
		return Target{}, apperr.Validation("tenant_id and service_id are required")
	}
	tenant, err := r.catalog.GetTenant(ctx, tenantID)
	if err != nil {
		return Target{}, lookupErr(err, "tenant %s not found", tenantID)
	}
	service, err := r.catalog.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return Target{}, lookupErr(err, "service %s not found", serviceID)
	}
	target := Target{Tenant: tenant, Service: service}

	serviceRules, err := r.catalog.ListRules(ctx, tenantID, model.ServiceScopeOf(serviceID))
	if err != nil {
		return Target{}, err
	}

	if !sel.IsAny() {
		pro, err := r.catalog.GetProfessional(ctx, tenantID, sel.ID())
		if err != nil {
			return Target{}, lookupErr(err, "professional %s not found", sel.ID())
		}
		if !pro.Active || !pro.Performs(serviceID) {
			return Target{}, apperr.NotFound("professional %s does not offer service %s", pro.ID, serviceID)
		}
		own, err := r.catalog.ListRules(ctx, tenantID, model.ProfessionalScopeOf(pro.ID))
		if err != nil {
			return Target{}, err
		}
		target.Professional = &pro
		target.Rules = own
		if len(own) == 0 {
			target.Rules = serviceRules
		}
		return target, nil
	}

	candidates, err := activeCandidates(ctx, r.catalog, tenantID, serviceID)
	if err != nil {
		return Target{}, err
	}
	target.Candidates = candidates
	target.Rules = serviceRules
	for _, p := range candidates {
		own, err := r.catalog.ListRules(ctx, tenantID, model.ProfessionalScopeOf(p.ID))
		if err != nil {
			return Target{}, err
		}
		if len(own) == 0 {
			continue
		}
		if target.own == nil {
			target.own = make(map[string]model.WeeklySchedule)
		}
		target.own[p.ID] = model.WeekOf(own)
	}
	return target, nil
}

// Evaluate generates and decorates the slots of target on date as seen at now.
func (r *Resolver) Evaluate(ctx context.Context, target Target, date time.Time, now time.Time) ([]DecoratedSlot, error) {
	day := NormalizeDate(date)
	raw := GenerateSlots(target.Rules, day, target.Duration(), r.interval)
	if len(raw) == 0 {
		return []DecoratedSlot{}, nil
	}

	var professionalIDs []string
	switch {
	case target.Professional != nil:
		professionalIDs = []string{target.Professional.ID}
	default:
		for _, p := range target.Candidates {
			professionalIDs = append(professionalIDs, p.ID)
		}
	}
	bookings, err := r.conflicts.forScope(ctx, target.Tenant.ID, target.Service.ID, professionalIDs, target.Any(), day)
	if err != nil {
		return nil, err
	}
	busy := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		busy = append(busy, Interval{Start: b.Start, End: b.End})
	}

	out := make([]DecoratedSlot, 0, len(raw))
	for i, s := range raw {
		if i > 0 && raw[i-1].Time == s.Time {
			continue
		}
		window := Interval{Start: s.Start, End: s.End}
		ds := DecoratedSlot{Time: s.Time, Start: s.Start, End: s.End, Available: true}

		if target.Any() && len(target.Candidates) > 0 {
			free := target.working(FreeProfessionals(target.Candidates, bookings, window), window)
			if len(free) == 0 {
				ds.Available, ds.Reason = false, ReasonNoProfessional
			}
			ds.Professionals = free
		} else if overlapsAny(window, busy) {
			ds.Available, ds.Reason = false, ReasonBooked
		}
		if ds.Available && s.Start.Before(now) {
			ds.Available, ds.Reason, ds.Professionals = false, ReasonPast, nil
		}
		out = append(out, ds)
	}
	return out, nil
}

// working drops professionals who keep their own schedule and are not on
// shift for the whole window.
func (t Target) working(pros []model.Professional, window Interval) []model.Professional {
	if len(t.own) == 0 {
		return pros
	}
	day := NormalizeDate(window.Start)
	out := pros[:0:0]
	for _, p := range pros {
		week, ok := t.own[p.ID]
		if !ok || covers(week.On(day.Weekday()), day, window) {
			out = append(out, p)
		}
	}
	return out
}

func covers(rules []model.AvailabilityRule, day time.Time, window Interval) bool {
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !window.Start.Before(rule.Start.On(day)) && !window.End.After(rule.End.On(day)) {
			return true
		}
	}
	return false
}

func activeCandidates(ctx context.Context, catalog Catalog, tenantID, serviceID string) ([]model.Professional, error) {
	pros, err := catalog.ListQualifiedProfessionals(ctx, tenantID, serviceID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Professional, 0, len(pros))
	for _, p := range pros {
		if p.Active && p.Performs(serviceID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func lookupErr(err error, format string, args ...any) error {
	if storage.IsNotFound(err) {
		return apperr.NotFound(format, args...)
	}
	return err
}
