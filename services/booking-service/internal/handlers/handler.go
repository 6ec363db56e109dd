package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
)

const PublicPrefix = "/api/v1/public/"

type Handler struct {
	resolver  *availability.Resolver
	committer *booking.Committer
	catalog   *booking.Catalog
	logger    *slog.Logger
}

func New(resolver *availability.Resolver, committer *booking.Committer, catalog *booking.Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolver: resolver, committer: committer, catalog: catalog, logger: logger}
}

// Register mounts the public widget routes and the tenant admin routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(PublicPrefix+"slots", h.Slots)
	mux.HandleFunc(PublicPrefix+"book", h.Book)

	mux.HandleFunc("/api/v1/tenants", h.Tenants)
	mux.HandleFunc("/api/v1/services", h.Services)
	mux.HandleFunc("/api/v1/professionals", h.Professionals)
	mux.HandleFunc("/api/v1/rules", h.Rules)
	mux.HandleFunc("/api/v1/bookings", h.Bookings)
	mux.HandleFunc("/api/v1/bookings/status", h.BookingStatus)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
	}
	httpx.WriteError(w, status, apperr.PublicMessage(err))
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// tenantID reads the acting tenant of an admin request.
func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := httpx.TenantKey(r)
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.TenantIDHeader+" header required")
		return "", false
	}
	return id, true
}
