package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

type tenantItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) Tenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.catalog.CreateTenant(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, tenantItem{ID: t.ID, Name: t.Name})
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

func toServiceItem(s model.Service) serviceItem {
	return serviceItem{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price.StringFixed(2)}
}

// Services handles GET (list), POST (create) and DELETE ?id= on /api/v1/services.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		services, err := h.catalog.ListServices(r.Context(), tenant)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		items := make([]serviceItem, 0, len(services))
		for _, s := range services {
			items = append(items, toServiceItem(s))
		}
		httpx.WriteJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req struct {
			Name            string `json:"name"`
			DurationMinutes int    `json:"duration_minutes"`
			Price           string `json:"price"`
		}
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		svc, err := h.catalog.CreateService(r.Context(), tenant, booking.NewService{
			Name: req.Name, DurationMinutes: req.DurationMinutes, Price: req.Price,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toServiceItem(svc))
	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id is required")
			return
		}
		if err := h.catalog.DeleteService(r.Context(), tenant, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

type professionalItem struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Active     bool     `json:"active"`
	ServiceIDs []string `json:"service_ids"`
}

// Professionals handles POST (create) and DELETE ?id= on /api/v1/professionals.
func (h *Handler) Professionals(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name       string   `json:"name"`
			Active     *bool    `json:"active"`
			ServiceIDs []string `json:"service_ids"`
		}
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		p, err := h.catalog.CreateProfessional(r.Context(), tenant, booking.NewProfessional{
			Name: req.Name, Active: req.Active, ServiceIDs: req.ServiceIDs,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ids := p.ServiceIDs
		if ids == nil {
			ids = []string{}
		}
		httpx.WriteJSON(w, http.StatusCreated, professionalItem{ID: p.ID, Name: p.Name, Active: p.Active, ServiceIDs: ids})
	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id is required")
			return
		}
		if err := h.catalog.DeleteProfessional(r.Context(), tenant, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "POST, DELETE")
	}
}

type ruleItem struct {
	ID             string `json:"id"`
	ServiceID      string `json:"service_id,omitempty"`
	ProfessionalID string `json:"professional_id,omitempty"`
	DayOfWeek      int    `json:"day_of_week"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Active         bool   `json:"active"`
}

func toRuleItem(rule model.AvailabilityRule) ruleItem {
	item := ruleItem{
		ID:        rule.ID,
		DayOfWeek: int(rule.DayOfWeek),
		StartTime: rule.Start.String(),
		EndTime:   rule.End.String(),
		Active:    rule.Active,
	}
	if rule.Scope.Kind == model.ProfessionalScope {
		item.ProfessionalID = rule.Scope.ID
	} else {
		item.ServiceID = rule.Scope.ID
	}
	return item
}

// Rules handles the weekly schedule of a service or professional:
// GET ?service_id|professional_id, POST, DELETE ?id=.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		week, err := h.catalog.Rules(r.Context(), tenant, q.Get("service_id"), q.Get("professional_id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		items := []ruleItem{}
		for day := time.Sunday; day <= time.Saturday; day++ {
			for _, rule := range week.On(day) {
				items = append(items, toRuleItem(rule))
			}
		}
		httpx.WriteJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req struct {
			ServiceID      string `json:"service_id"`
			ProfessionalID string `json:"professional_id"`
			DayOfWeek      *int   `json:"day_of_week"`
			StartTime      string `json:"start_time"`
			EndTime        string `json:"end_time"`
			Active         *bool  `json:"active"`
		}
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.DayOfWeek == nil {
			httpx.WriteError(w, http.StatusBadRequest, "day_of_week is required")
			return
		}
		rule, err := h.catalog.CreateRule(r.Context(), tenant, booking.NewRule{
			ServiceID:      req.ServiceID,
			ProfessionalID: req.ProfessionalID,
			DayOfWeek:      *req.DayOfWeek,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			Active:         req.Active,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toRuleItem(rule))
	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			httpx.WriteError(w, http.StatusBadRequest, "id is required")
			return
		}
		if err := h.catalog.DeleteRule(r.Context(), tenant, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

type bookingItem struct {
	ID             string `json:"id"`
	ServiceID      string `json:"service_id"`
	ProfessionalID string `json:"professional_id,omitempty"`
	ClientID       string `json:"client_id"`
	StartDateTime  string `json:"start_date_time"`
	EndDateTime    string `json:"end_date_time"`
	Status         string `json:"status"`
	TotalPrice     string `json:"total_price"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		ID:             b.ID,
		ServiceID:      b.ServiceID,
		ProfessionalID: b.ProfessionalID,
		ClientID:       b.ClientID,
		StartDateTime:  b.Start.UTC().Format(time.RFC3339),
		EndDateTime:    b.End.UTC().Format(time.RFC3339),
		Status:         string(b.Status),
		TotalPrice:     b.TotalPrice.StringFixed(2),
		Notes:          b.Notes,
		CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Bookings lists a tenant's bookings, optionally narrowed by service_id,
// professional_id, status, from/to dates and limit.
func (h *Handler) Bookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := booking.ListFilter{
		ServiceID:      strings.TrimSpace(q.Get("service_id")),
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		Status:         strings.TrimSpace(q.Get("status")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	for _, bound := range []struct {
		key string
		dst *time.Time
		add int
	}{{"from", &filter.From, 0}, {"to", &filter.To, 1}} {
		raw := strings.TrimSpace(q.Get(bound.key))
		if raw == "" {
			continue
		}
		d, err := availability.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, bound.key+": "+err.Error())
			return
		}
		*bound.dst = d.AddDate(0, 0, bound.add)
	}

	bookings, err := h.committer.List(r.Context(), tenant, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// BookingStatus applies a lifecycle transition: {"booking_id", "status"}.
func (h *Handler) BookingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := h.committer.Transition(r.Context(), tenant, req.BookingID, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingItem(b))
}
