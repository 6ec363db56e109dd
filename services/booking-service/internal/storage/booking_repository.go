package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

const bookingColumns = `
	id::text, tenant_id::text, service_id::text, COALESCE(professional_id::text, ''), client_id::text,
	start_time, end_time, status, total_price::text, notes, COALESCE(idempotency_key, ''), created_at, updated_at`

// FindOrCreateClient returns the tenant's client with c.Email, creating it
// from c when missing. Emails compare case-insensitively.
func (s *Store) FindOrCreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clients (tenant_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id::text, name, phone
	`, c.TenantID, c.Name, c.Email, c.Phone).Scan(&c.ID, &c.Name, &c.Phone)
	if err != nil {
		return model.Client{}, refErr(err)
	}
	return c, nil
}

// CreateBooking inserts b after checking, under a per-scope advisory lock,
// that no active booking of the same professional (or, without one, the same
// service) overlaps it. The exclusion constraints catch anything the check
// misses. Returns ErrOverlap or, for a reused idempotency key, ErrDuplicateKey.
func (s *Store) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	key, where, scopeID := "svc:"+b.ServiceID, `service_id = $2 AND professional_id IS NULL`, b.ServiceID
	if b.HasProfessional() {
		key, where, scopeID = "pro:"+b.ProfessionalID, `professional_id = $2`, b.ProfessionalID
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockScope(ctx, tx, b.TenantID, key); err != nil {
			return err
		}
		var overlapping bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM bookings
				WHERE tenant_id = $1 AND `+where+`
					AND status IN ('PENDING', 'CONFIRMED')
					AND start_time < $4 AND end_time > $3
			)
		`, b.TenantID, scopeID, b.Start, b.End).Scan(&overlapping); err != nil {
			return err
		}
		if overlapping {
			return ErrOverlap
		}
		return tx.QueryRow(ctx, `
			INSERT INTO bookings
				(tenant_id, service_id, professional_id, client_id, start_time, end_time, status, total_price, notes, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)
			RETURNING id::text, created_at, updated_at
		`, b.TenantID, b.ServiceID, nullable(b.ProfessionalID), b.ClientID, b.Start.UTC(), b.End.UTC(),
			string(b.Status), b.TotalPrice.String(), b.Notes, nullable(b.IdempotencyKey)).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	})
	switch {
	case err == nil:
		return b, nil
	case IsConflict(err):
		return model.Booking{}, ErrOverlap
	case isUniqueViolation(err):
		return model.Booking{}, fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	default:
		return model.Booking{}, refErr(err)
	}
}

func (s *Store) GetBooking(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = $1 AND id = $2
	`, tenantID, bookingID))
	return b, notFound(err)
}

func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key))
	return b, notFound(err)
}

// ListActiveBookings returns the PENDING and CONFIRMED bookings matching q
// that intersect [q.From, q.To).
func (s *Store) ListActiveBookings(ctx context.Context, q model.BookingQuery) ([]model.Booking, error) {
	if len(q.ProfessionalIDs) > 0 {
		return s.queryBookings(ctx, `
			SELECT `+bookingColumns+` FROM bookings
			WHERE tenant_id = $1 AND professional_id = ANY($2::uuid[])
				AND status IN ('PENDING', 'CONFIRMED')
				AND start_time < $4 AND end_time > $3
			ORDER BY start_time ASC
		`, q.TenantID, q.ProfessionalIDs, q.From, q.To)
	}
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE tenant_id = $1 AND service_id = $2 AND professional_id IS NULL
			AND status IN ('PENDING', 'CONFIRMED')
			AND start_time < $4 AND end_time > $3
		ORDER BY start_time ASC
	`, q.TenantID, q.ServiceID, q.From, q.To)
}

func (s *Store) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	where := []string{"tenant_id = $1"}
	args := []any{f.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ServiceID != "" {
		add("service_id = $%d", f.ServiceID)
	}
	if f.ProfessionalID != "" {
		add("professional_id = $%d", f.ProfessionalID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("end_time > $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}
	args = append(args, f.EffectiveLimit())
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY start_time ASC, id ASC
		LIMIT $`+fmt.Sprint(len(args)), args...)
}

// TransitionBooking moves a booking to next if its lifecycle allows it.
func (s *Store) TransitionBooking(ctx context.Context, tenantID, bookingID string, next model.BookingStatus) (model.Booking, error) {
	var out model.Booking
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanBooking(tx.QueryRow(ctx, `
			SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, bookingID))
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
		}
		out, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings SET status = $3, updated_at = now()
			WHERE tenant_id = $1 AND id = $2
			RETURNING `+bookingColumns,
			tenantID, bookingID, string(next)))
		return err
	})
	if err != nil {
		if IsConflict(err) {
			return model.Booking{}, ErrOverlap
		}
		return model.Booking{}, notFound(err)
	}
	return out, nil
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, notFound(err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status, price string
	var start, end time.Time
	if err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.ServiceID,
		&b.ProfessionalID,
		&b.ClientID,
		&start,
		&end,
		&status,
		&price,
		&b.Notes,
		&b.IdempotencyKey,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return model.Booking{}, err
	}
	b.Start, b.End = start.UTC(), end.UTC()
	b.Status = model.BookingStatus(status)
	total, err := decimal.NewFromString(price)
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking %s total: %w", b.ID, err)
	}
	b.TotalPrice = total
	return b, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
