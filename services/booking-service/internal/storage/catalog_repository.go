package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// Store is the PostgreSQL schedule store: catalog, rules, clients and
// bookings of every tenant.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (name) VALUES ($1)
		RETURNING id::text
	`, t.Name).Scan(&t.ID)
	return t, err
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	var t model.Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name FROM tenants WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name)
	if err != nil {
		return model.Tenant{}, notFound(err)
	}
	return t, nil
}

func (s *Store) CreateService(ctx context.Context, svc model.Service) (model.Service, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO services (tenant_id, name, duration_minutes, price)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING id::text
	`, svc.TenantID, svc.Name, svc.DurationMinutes, svc.Price.String()).Scan(&svc.ID)
	if err != nil {
		return model.Service{}, refErr(err)
	}
	return svc, nil
}

func (s *Store) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error) {
	var svc model.Service
	var price string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, duration_minutes, price::text
		FROM services
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, serviceID).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &price)
	if err != nil {
		return model.Service{}, notFound(err)
	}
	if svc.Price, err = decimal.NewFromString(price); err != nil {
		return model.Service{}, fmt.Errorf("service %s price: %w", svc.ID, err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, tenantID string) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, duration_minutes, price::text
		FROM services
		WHERE tenant_id = $1
		ORDER BY name ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		var price string
		if err := rows.Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &price); err != nil {
			return nil, err
		}
		if svc.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("service %s price: %w", svc.ID, err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) CreateProfessional(ctx context.Context, p model.Professional) (model.Professional, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO professionals (tenant_id, name, active)
			VALUES ($1, $2, $3)
			RETURNING id::text
		`, p.TenantID, p.Name, p.Active).Scan(&p.ID); err != nil {
			return err
		}
		for _, serviceID := range p.ServiceIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO professional_services (tenant_id, professional_id, service_id)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, p.TenantID, p.ID, serviceID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Professional{}, refErr(err)
	}
	return p, nil
}

func (s *Store) GetProfessional(ctx context.Context, tenantID, professionalID string) (model.Professional, error) {
	pros, err := s.queryProfessionals(ctx, `
		SELECT p.id::text, p.tenant_id::text, p.name, p.active,
			COALESCE(array_agg(ps.service_id::text ORDER BY ps.service_id) FILTER (WHERE ps.service_id IS NOT NULL), '{}')
		FROM professionals p
		LEFT JOIN professional_services ps ON ps.professional_id = p.id
		WHERE p.tenant_id = $1 AND p.id = $2
		GROUP BY p.id
	`, tenantID, professionalID)
	if err != nil {
		return model.Professional{}, err
	}
	if len(pros) == 0 {
		return model.Professional{}, ErrNotFound
	}
	return pros[0], nil
}

// ListQualifiedProfessionals returns every professional linked to serviceID,
// active or not, ordered by name then id.
func (s *Store) ListQualifiedProfessionals(ctx context.Context, tenantID, serviceID string) ([]model.Professional, error) {
	return s.queryProfessionals(ctx, `
		SELECT p.id::text, p.tenant_id::text, p.name, p.active,
			array_agg(all_ps.service_id::text ORDER BY all_ps.service_id)
		FROM professionals p
		JOIN professional_services ps ON ps.professional_id = p.id AND ps.service_id = $2
		JOIN professional_services all_ps ON all_ps.professional_id = p.id
		WHERE p.tenant_id = $1
		GROUP BY p.id
		ORDER BY p.name ASC, p.id ASC
	`, tenantID, serviceID)
}

func (s *Store) queryProfessionals(ctx context.Context, query string, args ...any) ([]model.Professional, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	var out []model.Professional
	for rows.Next() {
		var p model.Professional
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Active, &p.ServiceIDs); err != nil {
			return nil, notFound(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

// CreateRule stores rule unless it overlaps another rule of the same scope
// and day. The scope's service or professional must exist in the tenant.
func (s *Store) CreateRule(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockScope(ctx, tx, rule.TenantID, "rules:"+rule.Scope.String()); err != nil {
			return err
		}
		if err := scopeExists(ctx, tx, rule.TenantID, rule.Scope); err != nil {
			return err
		}
		var overlapping bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM availability_rules
				WHERE tenant_id = $1 AND scope_kind = $2 AND scope_id = $3 AND day_of_week = $4
					AND start_minute < $6 AND end_minute > $5
			)
		`, rule.TenantID, string(rule.Scope.Kind), rule.Scope.ID, int(rule.DayOfWeek), int(rule.Start), int(rule.End)).Scan(&overlapping); err != nil {
			return err
		}
		if overlapping {
			return ErrRuleOverlap
		}
		return tx.QueryRow(ctx, `
			INSERT INTO availability_rules (tenant_id, scope_kind, scope_id, day_of_week, start_minute, end_minute, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id::text
		`, rule.TenantID, string(rule.Scope.Kind), rule.Scope.ID, int(rule.DayOfWeek), int(rule.Start), int(rule.End), rule.Active).Scan(&rule.ID)
	})
	if err != nil {
		return model.AvailabilityRule{}, notFound(err)
	}
	return rule, nil
}

func scopeExists(ctx context.Context, tx pgx.Tx, tenantID string, scope model.Scope) error {
	table := "services"
	if scope.Kind == model.ProfessionalScope {
		table = "professionals"
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE tenant_id = $1 AND id = $2)`,
		tenantID, scope.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, tenantID string, scope model.Scope) ([]model.AvailabilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, scope_kind, scope_id::text, day_of_week, start_minute, end_minute, active
		FROM availability_rules
		WHERE tenant_id = $1 AND scope_kind = $2 AND scope_id = $3
		ORDER BY day_of_week ASC, start_minute ASC
	`, tenantID, string(scope.Kind), scope.ID)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var r model.AvailabilityRule
		var kind string
		var day, start, end int
		if err := rows.Scan(&r.ID, &r.TenantID, &kind, &r.Scope.ID, &day, &start, &end, &r.Active); err != nil {
			return nil, err
		}
		r.Scope.Kind = model.ScopeKind(kind)
		r.DayOfWeek = time.Weekday(day)
		r.Start, r.End = model.ClockTime(start), model.ClockTime(end)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

func (s *Store) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM availability_rules WHERE tenant_id = $1 AND id = $2
	`, tenantID, ruleID)
	if err != nil {
		return notFound(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteService removes a service together with its cancelled bookings,
// rules and professional links. Any other booking blocks the delete.
func (s *Store) DeleteService(ctx context.Context, tenantID, serviceID string) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockScope(ctx, tx, tenantID, "svc:"+serviceID); err != nil {
			return err
		}
		if err := blockingBookings(ctx, tx, `tenant_id = $1 AND service_id = $2`, tenantID, serviceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM bookings WHERE tenant_id = $1 AND service_id = $2 AND status = 'CANCELLED'
		`, tenantID, serviceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM availability_rules WHERE tenant_id = $1 AND scope_kind = 'service' AND scope_id = $2
		`, tenantID, serviceID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM services WHERE tenant_id = $1 AND id = $2`, tenantID, serviceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return notFound(err)
}

// DeleteProfessional mirrors DeleteService for a professional.
func (s *Store) DeleteProfessional(ctx context.Context, tenantID, professionalID string) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockScope(ctx, tx, tenantID, "pro:"+professionalID); err != nil {
			return err
		}
		if err := blockingBookings(ctx, tx, `tenant_id = $1 AND professional_id = $2`, tenantID, professionalID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM bookings WHERE tenant_id = $1 AND professional_id = $2 AND status = 'CANCELLED'
		`, tenantID, professionalID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM availability_rules WHERE tenant_id = $1 AND scope_kind = 'professional' AND scope_id = $2
		`, tenantID, professionalID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM professionals WHERE tenant_id = $1 AND id = $2`, tenantID, professionalID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return notFound(err)
}

func blockingBookings(ctx context.Context, tx pgx.Tx, where string, args ...any) error {
	var n int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM bookings WHERE `+where+` AND status <> 'CANCELLED'
	`, args...).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d booking(s) not cancelled", ErrInUse, n)
	}
	return nil
}

// lockScope serializes writers on one (tenant, key) pair for the rest of tx.
func lockScope(ctx context.Context, tx pgx.Tx, tenantID, key string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID+"|"+key)
	return err
}

func notFound(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	if IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// refErr maps a dangling tenant, service or professional reference to ErrNotFound.
func refErr(err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return notFound(err)
}
