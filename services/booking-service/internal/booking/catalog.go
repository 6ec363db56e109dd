package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// CatalogStore is the write side of the schedule store.
type CatalogStore interface {
	CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
	CreateService(ctx context.Context, s model.Service) (model.Service, error)
	ListServices(ctx context.Context, tenantID string) ([]model.Service, error)
	CreateProfessional(ctx context.Context, p model.Professional) (model.Professional, error)
	CreateRule(ctx context.Context, r model.AvailabilityRule) (model.AvailabilityRule, error)
	ListRules(ctx context.Context, tenantID string, scope model.Scope) ([]model.AvailabilityRule, error)
	DeleteRule(ctx context.Context, tenantID, ruleID string) error
	DeleteService(ctx context.Context, tenantID, serviceID string) error
	DeleteProfessional(ctx context.Context, tenantID, professionalID string) error
}

// Catalog administers tenants, services, professionals and their weekly rules.
type Catalog struct {
	store  CatalogStore
	logger *slog.Logger
}

func NewCatalog(store CatalogStore, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, logger: logger}
}

func (c *Catalog) CreateTenant(ctx context.Context, name string) (model.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tenant{}, apperr.Validation("name is required")
	}
	t, err := c.store.CreateTenant(ctx, model.Tenant{Name: name})
	if err != nil {
		return model.Tenant{}, err
	}
	c.logger.Info("tenant created", "tenant_id", t.ID)
	return t, nil
}

type NewService struct {
	Name            string
	DurationMinutes int
	Price           string
}

func (c *Catalog) CreateService(ctx context.Context, tenantID string, in NewService) (model.Service, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Service{}, apperr.Validation("name is required")
	}
	if in.DurationMinutes <= 0 || in.DurationMinutes > 24*60 {
		return model.Service{}, apperr.Validation("duration_minutes must be between 1 and 1440")
	}
	price := decimal.Zero
	if p := strings.TrimSpace(in.Price); p != "" {
		var err error
		price, err = decimal.NewFromString(p)
		if err != nil || price.IsNegative() {
			return model.Service{}, apperr.Validation("price must be a non-negative decimal")
		}
	}
	svc, err := c.store.CreateService(ctx, model.Service{
		TenantID:        tenantID,
		Name:            name,
		DurationMinutes: in.DurationMinutes,
		Price:           price.Round(2),
	})
	if err != nil {
		return model.Service{}, storeErr(err, "tenant "+tenantID)
	}
	c.logger.Info("service created", "tenant_id", tenantID, "service_id", svc.ID)
	return svc, nil
}

func (c *Catalog) ListServices(ctx context.Context, tenantID string) ([]model.Service, error) {
	if _, err := c.store.GetTenant(ctx, tenantID); err != nil {
		return nil, storeErr(err, "tenant "+tenantID)
	}
	services, err := c.store.ListServices(ctx, tenantID)
	if err != nil {
		return nil, storeErr(err, "tenant "+tenantID)
	}
	return services, nil
}

type NewProfessional struct {
	Name       string
	Active     *bool
	ServiceIDs []string
}

func (c *Catalog) CreateProfessional(ctx context.Context, tenantID string, in NewProfessional) (model.Professional, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Professional{}, apperr.Validation("name is required")
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	p, err := c.store.CreateProfessional(ctx, model.Professional{
		TenantID:   tenantID,
		Name:       name,
		Active:     active,
		ServiceIDs: in.ServiceIDs,
	})
	if err != nil {
		return model.Professional{}, storeErr(err, "tenant or service")
	}
	c.logger.Info("professional created", "tenant_id", tenantID, "professional_id", p.ID)
	return p, nil
}

type NewRule struct {
	ServiceID      string
	ProfessionalID string
	DayOfWeek      int
	StartTime      string
	EndTime        string
	Active         *bool
}

// CreateRule adds a weekly window for exactly one of a service or a
// professional. Overlapping windows on the same day are rejected.
func (c *Catalog) CreateRule(ctx context.Context, tenantID string, in NewRule) (model.AvailabilityRule, error) {
	scope, err := ruleScope(in.ServiceID, in.ProfessionalID)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	start, err := model.ParseClock(in.StartTime)
	if err != nil {
		return model.AvailabilityRule{}, apperr.Validation("start_time: %v", err)
	}
	end, err := model.ParseClock(in.EndTime)
	if err != nil {
		return model.AvailabilityRule{}, apperr.Validation("end_time: %v", err)
	}
	rule := model.AvailabilityRule{
		TenantID:  tenantID,
		Scope:     scope,
		DayOfWeek: time.Weekday(in.DayOfWeek),
		Start:     start,
		End:       end,
		Active:    in.Active == nil || *in.Active,
	}
	if err := rule.Validate(); err != nil {
		return model.AvailabilityRule{}, apperr.Validation("%v", err)
	}
	created, err := c.store.CreateRule(ctx, rule)
	if err != nil {
		return model.AvailabilityRule{}, storeErr(err, scope.String())
	}
	c.logger.Info("availability rule created", "tenant_id", tenantID, "rule_id", created.ID, "scope", scope.String())
	return created, nil
}

// Rules returns the weekly schedule of a service or professional.
func (c *Catalog) Rules(ctx context.Context, tenantID, serviceID, professionalID string) (model.WeeklySchedule, error) {
	scope, err := ruleScope(serviceID, professionalID)
	if err != nil {
		return model.WeeklySchedule{}, err
	}
	rules, err := c.store.ListRules(ctx, tenantID, scope)
	if err != nil {
		return model.WeeklySchedule{}, storeErr(err, scope.String())
	}
	return model.WeekOf(rules), nil
}

func (c *Catalog) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	if err := c.store.DeleteRule(ctx, tenantID, ruleID); err != nil {
		return storeErr(err, "rule "+ruleID)
	}
	return nil
}

// DeleteService removes the service, its rules and its cancelled bookings.
// It fails without deleting anything while other bookings reference it.
func (c *Catalog) DeleteService(ctx context.Context, tenantID, serviceID string) error {
	if err := c.store.DeleteService(ctx, tenantID, serviceID); err != nil {
		return storeErr(err, "service "+serviceID)
	}
	c.logger.Info("service deleted", "tenant_id", tenantID, "service_id", serviceID)
	return nil
}

func (c *Catalog) DeleteProfessional(ctx context.Context, tenantID, professionalID string) error {
	if err := c.store.DeleteProfessional(ctx, tenantID, professionalID); err != nil {
		return storeErr(err, "professional "+professionalID)
	}
	c.logger.Info("professional deleted", "tenant_id", tenantID, "professional_id", professionalID)
	return nil
}

func ruleScope(serviceID, professionalID string) (model.Scope, error) {
	serviceID, professionalID = strings.TrimSpace(serviceID), strings.TrimSpace(professionalID)
	switch {
	case serviceID != "" && professionalID != "":
		return model.Scope{}, apperr.Validation("set either service_id or professional_id, not both")
	case serviceID != "":
		return model.ServiceScopeOf(serviceID), nil
	case professionalID != "":
		return model.ProfessionalScopeOf(professionalID), nil
	}
	return model.Scope{}, apperr.Validation("service_id or professional_id is required")
}
