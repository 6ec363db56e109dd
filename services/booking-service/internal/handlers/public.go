package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type slotItem struct {
	Time          string `json:"time"`
	Available     bool   `json:"available"`
	Reason        string `json:"reason,omitempty"`
	Professionals []ref  `json:"professionals,omitempty"`
}

// Slots answers GET /api/v1/public/slots?tenant_id&service_id&professional_id&date.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	tenant := strings.TrimSpace(q.Get("tenant_id"))
	service := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if tenant == "" || service == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tenant_id, service_id and date are required")
		return
	}
	date, err := availability.ParseDate(dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := h.resolver.Resolve(r.Context(), availability.Query{
		TenantID:     tenant,
		ServiceID:    service,
		Professional: model.ParseProfessionalSelector(q.Get("professional_id")),
		Date:         date,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		item := slotItem{Time: s.Time.String(), Available: s.Available, Reason: s.Reason}
		for _, p := range s.Professionals {
			item.Professionals = append(item.Professionals, ref{ID: p.ID, Name: p.Name})
		}
		resp = append(resp, item)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type bookRequest struct {
	TenantID       string `json:"tenant_id"`
	ServiceID      string `json:"service_id"`
	ProfessionalID string `json:"professional_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	EndTime        string `json:"end_time"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
	CustomerPhone  string `json:"customer_phone"`
	Notes          string `json:"notes"`
}

type bookResponse struct {
	ID            string `json:"id"`
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time"`
	Service       ref    `json:"service"`
	Professional  *ref   `json:"professional,omitempty"`
	TotalPrice    string `json:"total_price"`
	Status        string `json:"status"`
}

// Book answers POST /api/v1/public/book.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		var err error
		if date, err = availability.ParseDate(strings.TrimSpace(req.Date)); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := h.committer.Commit(r.Context(), booking.CommitRequest{
		TenantID:       strings.TrimSpace(req.TenantID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Professional:   model.ParseProfessionalSelector(req.ProfessionalID),
		Date:           date,
		Time:           req.Time,
		EndTime:        strings.TrimSpace(req.EndTime),
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := bookResponse{
		ID:            res.Booking.ID,
		StartDateTime: res.Booking.Start.UTC().Format(time.RFC3339),
		EndDateTime:   res.Booking.End.UTC().Format(time.RFC3339),
		Service:       ref{ID: res.Service.ID, Name: res.Service.Name},
		TotalPrice:    res.Booking.TotalPrice.StringFixed(2),
		Status:        string(res.Booking.Status),
	}
	if res.Professional != nil {
		resp.Professional = &ref{ID: res.Professional.ID, Name: res.Professional.Name}
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}
