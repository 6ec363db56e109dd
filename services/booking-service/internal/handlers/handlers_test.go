package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/storage/memory"
)

// A Monday far enough ahead that no slot is in the past.
var futureMonday = func() time.Time {
	d := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 14)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}()

type server struct {
	t       *testing.T
	handler http.Handler
}

func newServer(t *testing.T) server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	resolver := availability.NewResolver(store)
	h := New(resolver, booking.NewCommitter(store, resolver, logger), booking.NewCatalog(store, logger), logger)
	mux := http.NewServeMux()
	h.Register(mux)
	return server{t: t, handler: httpx.WithRequestID(mux)}
}

func (s server) do(method, path, tenant string, body any, header ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenant != "" {
		req.Header.Set(httpx.TenantIDHeader, tenant)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type seeded struct {
	tenant, service, pro string
}

func seed(t *testing.T, s server) seeded {
	t.Helper()
	rr := s.do(http.MethodPost, "/api/v1/tenants", "", map[string]any{"name": "Studio"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("tenant: %d %s", rr.Code, rr.Body.String())
	}
	tenant := decode[tenantItem](t, rr).ID

	rr = s.do(http.MethodPost, "/api/v1/services", tenant, map[string]any{"name": "Cut", "duration_minutes": 30, "price": "20"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("service: %d %s", rr.Code, rr.Body.String())
	}
	svc := decode[serviceItem](t, rr)
	if svc.Price != "20.00" {
		t.Fatalf("price = %q", svc.Price)
	}

	rr = s.do(http.MethodPost, "/api/v1/professionals", tenant, map[string]any{"name": "Ada", "service_ids": []string{svc.ID}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("professional: %d %s", rr.Code, rr.Body.String())
	}
	pro := decode[professionalItem](t, rr).ID

	rr = s.do(http.MethodPost, "/api/v1/rules", tenant, map[string]any{
		"service_id": svc.ID, "day_of_week": 1, "start_time": "09:00", "end_time": "12:00",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("rule: %d %s", rr.Code, rr.Body.String())
	}
	return seeded{tenant: tenant, service: svc.ID, pro: pro}
}

func (d seeded) slotsPath(professional string) string {
	return "/api/v1/public/slots?tenant_id=" + d.tenant + "&service_id=" + d.service +
		"&professional_id=" + professional + "&date=" + futureMonday.Format("2006-01-02")
}

func (d seeded) bookBody(professional, clock string) map[string]any {
	return map[string]any{
		"tenant_id":       d.tenant,
		"service_id":      d.service,
		"professional_id": professional,
		"date":            futureMonday.Format("2006-01-02"),
		"time":            clock,
		"customer_name":   "Jo",
		"customer_email":  "jo@example.com",
	}
}

func TestSlotsAndBookFlow(t *testing.T) {
	s := newServer(t)
	d := seed(t, s)

	rr := s.do(http.MethodGet, d.slotsPath("any"), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("slots: %d %s", rr.Code, rr.Body.String())
	}
	slots := decode[[]slotItem](t, rr)
	if len(slots) != 6 || slots[0].Time != "09:00" || slots[5].Time != "11:30" {
		t.Fatalf("unexpected slots: %+v", slots)
	}
	if len(slots[0].Professionals) != 1 || slots[0].Professionals[0].Name != "Ada" {
		t.Fatalf("expected Ada offered at 09:00: %+v", slots[0])
	}

	rr = s.do(http.MethodPost, "/api/v1/public/book", "", d.bookBody("", "10:00"), IdempotencyKeyHeader, "k-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rr.Code, rr.Body.String())
	}
	created := decode[bookResponse](t, rr)
	if created.Status != "PENDING" || created.Professional == nil || created.Professional.ID != d.pro || created.TotalPrice != "20.00" {
		t.Fatalf("unexpected booking: %+v", created)
	}
	if created.StartDateTime != futureMonday.Add(10*time.Hour).Format(time.RFC3339) {
		t.Fatalf("start = %s", created.StartDateTime)
	}

	rr = s.do(http.MethodPost, "/api/v1/public/book", "", d.bookBody("", "10:00"), IdempotencyKeyHeader, "k-1")
	if rr.Code != http.StatusCreated || rr.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay: %d %v", rr.Code, rr.Header())
	}
	if decode[bookResponse](t, rr).ID != created.ID {
		t.Fatalf("replay returned a different booking")
	}

	rr = s.do(http.MethodPost, "/api/v1/public/book", "", d.bookBody(d.pro, "10:00"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[map[string]string](t, rr)["error"]; got != "slot unavailable" {
		t.Fatalf("error = %q", got)
	}

	rr = s.do(http.MethodGet, d.slotsPath(d.pro), "", nil)
	for _, slot := range decode[[]slotItem](t, rr) {
		if slot.Time == "10:00" && (slot.Available || slot.Reason != availability.ReasonBooked) {
			t.Fatalf("10:00 should be booked: %+v", slot)
		}
	}

	rr = s.do(http.MethodGet, "/api/v1/bookings?status=pending", d.tenant, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
	if items := decode[[]bookingItem](t, rr); len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", items)
	}

	rr = s.do(http.MethodDelete, "/api/v1/services?id="+d.service, d.tenant, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("delete with active booking: %d %s", rr.Code, rr.Body.String())
	}

	rr = s.do(http.MethodPost, "/api/v1/bookings/status", d.tenant, map[string]string{"booking_id": created.ID, "status": "CANCELLED"})
	if rr.Code != http.StatusOK || decode[bookingItem](t, rr).Status != "CANCELLED" {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body.String())
	}

	rr = s.do(http.MethodDelete, "/api/v1/services?id="+d.service, d.tenant, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete after cancel: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPublicErrors(t *testing.T) {
	s := newServer(t)
	d := seed(t, s)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"slots wrong method", http.MethodPost, d.slotsPath(""), nil, http.StatusMethodNotAllowed},
		{"slots missing params", http.MethodGet, "/api/v1/public/slots?tenant_id=" + d.tenant, nil, http.StatusBadRequest},
		{"slots bad date", http.MethodGet, "/api/v1/public/slots?tenant_id=" + d.tenant + "&service_id=" + d.service + "&date=tomorrow", nil, http.StatusBadRequest},
		{"slots unknown tenant", http.MethodGet, "/api/v1/public/slots?tenant_id=nope&service_id=" + d.service + "&date=2030-01-07", nil, http.StatusNotFound},
		{"slots unknown professional", http.MethodGet, d.slotsPath("nope"), nil, http.StatusNotFound},
		{"book wrong method", http.MethodGet, "/api/v1/public/book", nil, http.StatusMethodNotAllowed},
		{"book unknown field", http.MethodPost, "/api/v1/public/book", map[string]any{"tenant": "x"}, http.StatusBadRequest},
		{"book missing fields", http.MethodPost, "/api/v1/public/book", map[string]any{"tenant_id": d.tenant}, http.StatusBadRequest},
		{"book off grid", http.MethodPost, "/api/v1/public/book", d.bookBody("", "10:10"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(tc.method, tc.path, "", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, rr.Code, rr.Body.String())
			}
			if _, ok := decode[map[string]any](t, rr)["error"]; !ok {
				t.Fatalf("expected error body, got %s", rr.Body.String())
			}
		})
	}
}

func TestAdminRequiresTenant(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/api/v1/services", "/api/v1/rules", "/api/v1/bookings"} {
		rr := s.do(http.MethodGet, path, "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}

func TestRulesListAndDelete(t *testing.T) {
	s := newServer(t)
	d := seed(t, s)

	rr := s.do(http.MethodPost, "/api/v1/rules", d.tenant, map[string]any{
		"service_id": d.service, "day_of_week": 1, "start_time": "11:00", "end_time": "13:00",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("overlapping rule: %d %s", rr.Code, rr.Body.String())
	}

	rr = s.do(http.MethodGet, "/api/v1/rules?service_id="+d.service, d.tenant, nil)
	rules := decode[[]ruleItem](t, rr)
	if len(rules) != 1 || rules[0].StartTime != "09:00" || rules[0].DayOfWeek != 1 {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	rr = s.do(http.MethodDelete, "/api/v1/rules?id="+rules[0].ID, d.tenant, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete rule: %d", rr.Code)
	}
	rr = s.do(http.MethodGet, d.slotsPath(""), "", nil)
	if slots := decode[[]slotItem](t, rr); len(slots) != 0 {
		t.Fatalf("expected no slots without rules, got %+v", slots)
	}
}
