// Package booking turns a chosen slot into a stored booking and manages the
// booking lifecycle afterwards.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
)

// Store is everything the committer needs from persistence.
type Store interface {
	availability.Store
	ClientDirectory
	CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	GetBooking(ctx context.Context, tenantID, bookingID string) (model.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Booking, error)
	ListBookings(ctx context.Context, f storage.BookingFilter) ([]model.Booking, error)
	TransitionBooking(ctx context.Context, tenantID, bookingID string, next model.BookingStatus) (model.Booking, error)
}

type ClientDirectory interface {
	FindOrCreateClient(ctx context.Context, c model.Client) (model.Client, error)
}

// Notifier receives an event for every new booking. It must not block.
type Notifier interface {
	Enqueue(ctx context.Context, ev notify.Event) bool
}

type CommitRequest struct {
	TenantID      string
	ServiceID     string
	Professional  model.ProfessionalSelector
	Date          time.Time
	Time          string
	EndTime       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	// IdempotencyKey, when set, makes a retried request return the booking
	// created by the first one.
	IdempotencyKey string
}

type Result struct {
	Booking      model.Booking
	Service      model.Service
	Professional *model.Professional
	// Replayed is true when the booking came from an earlier request with the
	// same idempotency key.
	Replayed bool
}

type Committer struct {
	store    Store
	resolver *availability.Resolver
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

type Option func(*Committer)

// WithClock replaces the wall clock used for past-slot checks.
func WithClock(now func() time.Time) Option {
	return func(c *Committer) {
		if now != nil {
			c.now = now
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Committer) { c.notifier = n }
}

func NewCommitter(store Store, resolver *availability.Resolver, logger *slog.Logger, opts ...Option) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Committer{
		store:    store,
		resolver: resolver,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer("booking"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit books the requested slot. It re-checks availability under the
// store's per-scope lock, so of two racing commits for overlapping ranges
// exactly one succeeds and the other gets apperr.ErrSlotUnavailable.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "booking.commit", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("service_id", req.ServiceID),
		attribute.String("professional", req.Professional.String()),
	))
	defer span.End()

	res, err := c.commit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
		return Result{}, err
	}
	span.SetAttributes(attribute.String("booking_id", res.Booking.ID), attribute.Bool("replayed", res.Replayed))
	return res, nil
}

func (c *Committer) commit(ctx context.Context, req CommitRequest) (Result, error) {
	clock, email, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		if res, ok, err := c.replay(ctx, req.TenantID, key); err != nil || ok {
			return res, err
		}
	}

	target, err := c.resolver.Prepare(ctx, req.TenantID, req.ServiceID, req.Professional)
	if err != nil {
		return Result{}, err
	}

	day := availability.NormalizeDate(req.Date)
	start := clock.On(day)
	end := start.Add(target.Duration())
	if req.EndTime != "" {
		endClock, err := model.ParseClock(req.EndTime)
		if err != nil {
			return Result{}, apperr.Validation("end_time: %v", err)
		}
		if !endClock.On(day).Equal(end) {
			return Result{}, apperr.Validation("end_time must be %s for a %d minute service", model.ClockOf(end), target.Service.DurationMinutes)
		}
	}
	now := c.now()
	if start.Before(now) {
		return Result{}, apperr.Validation("cannot book a slot in the past")
	}

	slots, err := c.resolver.Evaluate(ctx, target, day, now)
	if err != nil {
		return Result{}, err
	}
	slot, ok := findSlot(slots, clock)
	if !ok {
		return Result{}, apperr.Validation("%s on %s is not a bookable time for this service", clock, availability.FormatDate(day))
	}
	if !slot.Available {
		return Result{}, apperr.ErrSlotUnavailable
	}

	client, err := c.store.FindOrCreateClient(ctx, model.Client{
		TenantID: req.TenantID,
		Name:     strings.TrimSpace(req.CustomerName),
		Email:    email,
		Phone:    strings.TrimSpace(req.CustomerPhone),
	})
	if err != nil {
		return Result{}, storeErr(err, "tenant "+req.TenantID)
	}

	draft := model.Booking{
		TenantID:       req.TenantID,
		ServiceID:      target.Service.ID,
		ClientID:       client.ID,
		Start:          slot.Start,
		End:            slot.End,
		Status:         model.StatusPending,
		TotalPrice:     target.Service.Price,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: key,
	}

	var candidates []*model.Professional
	switch {
	case target.Professional != nil:
		candidates = []*model.Professional{target.Professional}
	case len(target.Candidates) > 0:
		for i := range slot.Professionals {
			candidates = append(candidates, &slot.Professionals[i])
		}
	default:
		candidates = []*model.Professional{nil}
	}

	for _, pro := range candidates {
		b := draft
		if pro != nil {
			b.ProfessionalID = pro.ID
		}
		created, err := c.store.CreateBooking(ctx, b)
		switch {
		case err == nil:
			res := Result{Booking: created, Service: target.Service, Professional: pro}
			c.announce(ctx, res, client)
			c.logger.Info("booking committed",
				"tenant_id", created.TenantID,
				"booking_id", created.ID,
				"professional_id", created.ProfessionalID,
				"start", created.Start.Format(time.RFC3339),
			)
			return res, nil
		case storage.IsConflict(err):
			continue
		case key != "" && errors.Is(err, storage.ErrDuplicateKey):
			if res, ok, err := c.replay(ctx, req.TenantID, key); err != nil || ok {
				return res, err
			}
			return Result{}, err
		default:
			return Result{}, storeErr(err, "service "+req.ServiceID)
		}
	}
	return Result{}, apperr.ErrSlotUnavailable
}

// replay returns the booking already stored under key, if any.
func (c *Committer) replay(ctx context.Context, tenantID, key string) (Result, bool, error) {
	existing, err := c.store.GetBookingByIdempotencyKey(ctx, tenantID, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return Result{}, false, nil
		}
		return Result{}, false, err
	}
	res := Result{Booking: existing, Replayed: true}
	if res.Service, err = c.store.GetService(ctx, tenantID, existing.ServiceID); err != nil {
		return Result{}, false, err
	}
	if existing.HasProfessional() {
		pro, err := c.store.GetProfessional(ctx, tenantID, existing.ProfessionalID)
		if err != nil {
			return Result{}, false, err
		}
		res.Professional = &pro
	}
	return res, true, nil
}

func (c *Committer) announce(ctx context.Context, res Result, client model.Client) {
	if c.notifier == nil {
		return
	}
	ev := notify.Event{
		Type:        notify.EventBookingCreated,
		TenantID:    res.Booking.TenantID,
		BookingID:   res.Booking.ID,
		ServiceID:   res.Service.ID,
		ServiceName: res.Service.Name,
		ClientName:  client.Name,
		ClientEmail: client.Email,
		Start:       res.Booking.Start,
		End:         res.Booking.End,
		TotalPrice:  res.Booking.TotalPrice,
		Status:      string(res.Booking.Status),
		OccurredAt:  c.now(),
	}
	if res.Professional != nil {
		ev.ProfessionalID, ev.ProfessionalName = res.Professional.ID, res.Professional.Name
	}
	c.notifier.Enqueue(ctx, ev)
}

func validate(req CommitRequest) (model.ClockTime, string, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"tenant_id", req.TenantID},
		{"service_id", req.ServiceID},
		{"time", req.Time},
		{"customer_name", req.CustomerName},
		{"customer_email", req.CustomerEmail},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if req.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return 0, "", apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	clock, err := model.ParseClock(req.Time)
	if err != nil {
		return 0, "", apperr.Validation("time: %v", err)
	}
	if clock >= model.EndOfDay {
		return 0, "", apperr.Validation("time must be before 24:00")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.CustomerEmail))
	if err != nil || addr.Address != strings.TrimSpace(req.CustomerEmail) {
		return 0, "", apperr.Validation("customer_email is not a valid address")
	}
	return clock, strings.ToLower(addr.Address), nil
}

func findSlot(slots []availability.DecoratedSlot, clock model.ClockTime) (availability.DecoratedSlot, bool) {
	for _, s := range slots {
		if s.Time == clock {
			return s, true
		}
	}
	return availability.DecoratedSlot{}, false
}
