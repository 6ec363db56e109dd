package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage/memory"
)

var (
	monday  = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	fixedAt = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Enqueue(_ context.Context, ev notify.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return true
}

type env struct {
	store     *memory.Store
	committer *Committer
	catalog   *Catalog
	notifier  *recordingNotifier
	tenant    model.Tenant
	service   model.Service
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	catalog := NewCatalog(store, quietLogger())
	tenant, err := catalog.CreateTenant(ctx, "Studio")
	if err != nil {
		t.Fatalf("tenant: %v", err)
	}
	svc, err := catalog.CreateService(ctx, tenant.ID, NewService{Name: "Cut", DurationMinutes: 60, Price: "35.00"})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := catalog.CreateRule(ctx, tenant.ID, NewRule{ServiceID: svc.ID, DayOfWeek: int(time.Monday), StartTime: "09:00", EndTime: "12:00"}); err != nil {
		t.Fatalf("rule: %v", err)
	}
	n := &recordingNotifier{}
	committer := NewCommitter(store, availability.NewResolver(store), quietLogger(),
		WithClock(func() time.Time { return fixedAt }),
		WithNotifier(n),
	)
	return env{store: store, committer: committer, catalog: catalog, notifier: n, tenant: tenant, service: svc}
}

func (e env) addPro(t *testing.T, name string) model.Professional {
	t.Helper()
	p, err := e.catalog.CreateProfessional(context.Background(), e.tenant.ID, NewProfessional{Name: name, ServiceIDs: []string{e.service.ID}})
	if err != nil {
		t.Fatalf("professional: %v", err)
	}
	return p
}

func (e env) request(sel model.ProfessionalSelector, clock string) CommitRequest {
	return CommitRequest{
		TenantID:      e.tenant.ID,
		ServiceID:     e.service.ID,
		Professional:  sel,
		Date:          monday,
		Time:          clock,
		CustomerName:  "Jo Client",
		CustomerEmail: "jo@example.com",
	}
}

func TestCommitCreatesPendingBooking(t *testing.T) {
	e := newEnv(t)
	pro := e.addPro(t, "Ada")

	res, err := e.committer.Commit(context.Background(), e.request(model.SpecificProfessional(pro.ID), "10:00"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	b := res.Booking
	if b.Status != model.StatusPending || b.ProfessionalID != pro.ID {
		t.Fatalf("unexpected booking: %+v", b)
	}
	if !b.Start.Equal(monday.Add(10*time.Hour)) || !b.End.Equal(monday.Add(11*time.Hour)) {
		t.Fatalf("unexpected range: %s - %s", b.Start, b.End)
	}
	if !b.TotalPrice.Equal(decimal.RequireFromString("35")) {
		t.Fatalf("price snapshot = %s", b.TotalPrice)
	}
	if len(e.notifier.events) != 1 || e.notifier.events[0].BookingID != b.ID || e.notifier.events[0].ProfessionalName != "Ada" {
		t.Fatalf("notification not enqueued: %+v", e.notifier.events)
	}
}

func TestCommitConflictReturnsSlotUnavailable(t *testing.T) {
	e := newEnv(t)
	pro := e.addPro(t, "Ada")
	ctx := context.Background()

	if _, err := e.committer.Commit(ctx, e.request(model.SpecificProfessional(pro.ID), "10:00")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := e.committer.Commit(ctx, e.request(model.SpecificProfessional(pro.ID), "10:30"))
	if !errors.Is(err, apperr.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable, got %v", err)
	}
	if apperr.HTTPStatus(err) != 409 {
		t.Fatalf("expected 409, got %d", apperr.HTTPStatus(err))
	}
	bookings, _ := e.store.ListBookings(ctx, storage.BookingFilter{TenantID: e.tenant.ID})
	if len(bookings) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(bookings))
	}
}

func TestCommitConcurrentExactlyOneWins(t *testing.T) {
	e := newEnv(t)
	pro := e.addPro(t, "Ada")
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := e.request(model.SpecificProfessional(pro.ID), "10:00")
			_, errs[i] = e.committer.Commit(ctx, req)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, apperr.ErrSlotUnavailable):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected one success, got %d", ok)
	}
	bookings, _ := e.store.ListBookings(ctx, storage.BookingFilter{TenantID: e.tenant.ID, ProfessionalID: pro.ID})
	if len(bookings) != 1 {
		t.Fatalf("expected 1 booking in window, got %d", len(bookings))
	}
}

func TestCommitAnyProfessionalAssignsFreeOne(t *testing.T) {
	e := newEnv(t)
	x := e.addPro(t, "Xavier")
	y := e.addPro(t, "Yara")
	ctx := context.Background()

	if _, err := e.committer.Commit(ctx, e.request(model.SpecificProfessional(y.ID), "10:00")); err != nil {
		t.Fatalf("book Yara: %v", err)
	}
	res, err := e.committer.Commit(ctx, e.request(model.AnyProfessional(), "10:00"))
	if err != nil {
		t.Fatalf("commit any: %v", err)
	}
	if res.Booking.ProfessionalID != x.ID || res.Professional == nil || res.Professional.ID != x.ID {
		t.Fatalf("expected Xavier, got %+v", res.Booking)
	}
	if _, err := e.committer.Commit(ctx, e.request(model.AnyProfessional(), "10:00")); !errors.Is(err, apperr.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable once everyone is booked, got %v", err)
	}
}

func TestCommitAnyProfessionalPrefersNameOrder(t *testing.T) {
	e := newEnv(t)
	e.addPro(t, "Zed")
	ada := e.addPro(t, "Ada")

	res, err := e.committer.Commit(context.Background(), e.request(model.AnyProfessional(), "09:00"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Booking.ProfessionalID != ada.ID {
		t.Fatalf("expected Ada first, got %s", res.Booking.ProfessionalID)
	}
}

func TestCommitWithoutProfessionalsBooksService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.committer.Commit(ctx, e.request(model.AnyProfessional(), "09:00"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Booking.HasProfessional() {
		t.Fatalf("expected service-level booking, got professional %s", res.Booking.ProfessionalID)
	}
	if _, err := e.committer.Commit(ctx, e.request(model.AnyProfessional(), "09:30")); !errors.Is(err, apperr.ErrSlotUnavailable) {
		t.Fatalf("expected conflict on service scope, got %v", err)
	}
}

func TestCommitIdempotencyReplay(t *testing.T) {
	e := newEnv(t)
	pro := e.addPro(t, "Ada")
	ctx := context.Background()
	req := e.request(model.SpecificProfessional(pro.ID), "10:00")
	req.IdempotencyKey = "form-123"

	first, err := e.committer.Commit(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := e.committer.Commit(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Booking.ID != first.Booking.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Booking.ID, second)
	}
	if len(e.notifier.events) != 1 {
		t.Fatalf("replay should not notify again, got %d events", len(e.notifier.events))
	}
}

func TestCommitValidation(t *testing.T) {
	e := newEnv(t)
	pro := e.addPro(t, "Ada")
	base := e.request(model.SpecificProfessional(pro.ID), "10:00")

	cases := []struct {
		name   string
		mutate func(*CommitRequest)
	}{
		{"missing name", func(r *CommitRequest) { r.CustomerName = "" }},
		{"bad email", func(r *CommitRequest) { r.CustomerEmail = "not-an-email" }},
		{"bad time", func(r *CommitRequest) { r.Time = "10h" }},
		{"off grid", func(r *CommitRequest) { r.Time = "10:15" }},
		{"outside rule", func(r *CommitRequest) { r.Time = "11:30" }},
		{"end mismatch", func(r *CommitRequest) { r.EndTime = "10:30" }},
		{"past", func(r *CommitRequest) { r.Date = fixedAt.AddDate(0, 0, -7) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := e.committer.Commit(context.Background(), req)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	ok := base
	ok.EndTime = "11:00"
	if _, err := e.committer.Commit(context.Background(), ok); err != nil {
		t.Fatalf("matching end_time should pass: %v", err)
	}
}

func TestCommitUnknownReferences(t *testing.T) {
	e := newEnv(t)
	other, _ := e.catalog.CreateService(context.Background(), e.tenant.ID, NewService{Name: "Color", DurationMinutes: 30})
	pro := e.addPro(t, "Ada")

	for name, req := range map[string]CommitRequest{
		"tenant":       func() CommitRequest { r := e.request(model.AnyProfessional(), "10:00"); r.TenantID = "missing"; return r }(),
		"service":      func() CommitRequest { r := e.request(model.AnyProfessional(), "10:00"); r.ServiceID = "missing"; return r }(),
		"professional": e.request(model.SpecificProfessional("missing"), "10:00"),
		"unqualified":  func() CommitRequest { r := e.request(model.SpecificProfessional(pro.ID), "10:00"); r.ServiceID = other.ID; return r }(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.committer.Commit(context.Background(), req)
			if apperr.KindOf(err) != apperr.KindNotFound {
				t.Fatalf("expected NotFound, got %v", err)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	e := newEnv(t)
	pro := e.addPro(t, "Ada")
	ctx := context.Background()
	res, err := e.committer.Commit(ctx, e.request(model.SpecificProfessional(pro.ID), "10:00"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	id := res.Booking.ID

	if b, err := e.committer.Transition(ctx, e.tenant.ID, id, "confirmed"); err != nil || b.Status != model.StatusConfirmed {
		t.Fatalf("confirm: %+v %v", b, err)
	}
	if _, err := e.committer.Transition(ctx, e.tenant.ID, id, "PENDING"); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for backwards move, got %v", err)
	}
	if _, err := e.committer.Transition(ctx, e.tenant.ID, id, "LOST"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation for unknown status, got %v", err)
	}
	if b, err := e.committer.Transition(ctx, e.tenant.ID, id, "CANCELLED"); err != nil || b.Status != model.StatusCancelled {
		t.Fatalf("cancel: %+v %v", b, err)
	}
	if _, err := e.committer.Transition(ctx, e.tenant.ID, id, "CONFIRMED"); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("cancelled is terminal, got %v", err)
	}

	// the slot is free again once cancelled
	if _, err := e.committer.Commit(ctx, e.request(model.SpecificProfessional(pro.ID), "10:00")); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}
