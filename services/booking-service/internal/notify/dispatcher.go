package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/apperr"
)

// NotificationSink publishes booking events to other systems.
type NotificationSink interface {
	Publish(ctx context.Context, ev Event) error
}

// EmailSink delivers a plain text message.
type EmailSink interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Option func(*Dispatcher)

func WithSink(s NotificationSink) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
}

func WithEmail(e EmailSink) Option {
	return func(d *Dispatcher) { d.email = e }
}

// WithDrainTimeout bounds how long Run keeps delivering after its context
// is cancelled.
func WithDrainTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.drainTimeout = t
		}
	}
}

// WithRetry sets how many times a delivery is attempted and the first pause
// between attempts.
func WithRetry(maxAttempts int, initial time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = uint(maxAttempts)
		}
		if initial > 0 {
			d.initialInterval = initial
		}
	}
}

type Dispatcher struct {
	queue           *Queue
	logger          *slog.Logger
	sinks           []NotificationSink
	email           EmailSink
	maxAttempts     uint
	initialInterval time.Duration
	drainTimeout    time.Duration
	tracer          trace.Tracer
}

func NewDispatcher(queue *Queue, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		queue:           queue,
		logger:          logger,
		maxAttempts:     5,
		initialInterval: 500 * time.Millisecond,
		drainTimeout:    15 * time.Second,
		tracer:          otel.Tracer("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run delivers events until the queue is closed and drained. Once ctx is
// done it keeps delivering with a detached context for at most the drain
// timeout, then logs every event still queued as dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			return
		case ev, ok := <-d.queue.ch:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				d.drain(ctx, ev)
				return
			}
			d.Deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context, pending ...Event) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
	defer cancel()
	for _, ev := range pending {
		d.Deliver(drainCtx, ev)
	}
	for {
		select {
		case ev, ok := <-d.queue.ch:
			if !ok {
				return
			}
			d.Deliver(drainCtx, ev)
		case <-drainCtx.Done():
			for {
				select {
				case ev, ok := <-d.queue.ch:
					if !ok {
						return
					}
					d.logDropped(ev)
				default:
					return
				}
			}
		}
	}
}

// Deliver hands ev to every sink and emails the client. Failures are logged
// and never returned: a booking stands regardless of its notifications.
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) {
	ctx = ev.trace.Resume(ctx)
	ctx, span := d.tracer.Start(ctx, "notify.deliver", trace.WithAttributes(
		attribute.String("event_type", ev.Type),
		attribute.String("booking_id", ev.BookingID),
	))
	defer span.End()

	for _, sink := range d.sinks {
		if err := d.retry(ctx, func() error { return sink.Publish(ctx, ev) }); err != nil {
			span.RecordError(err)
			d.logFailure(ev, apperr.Dependency("publish booking event", err))
		}
	}

	if d.email == nil || strings.TrimSpace(ev.ClientEmail) == "" {
		return
	}
	subject, body := ev.Email()
	if err := d.retry(ctx, func() error { return d.email.Send(ctx, ev.ClientEmail, subject, body) }); err != nil {
		span.RecordError(err)
		d.logFailure(ev, apperr.Dependency("send booking email", err))
	}
}

func (d *Dispatcher) retry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialInterval
	b.MaxInterval = 30 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if errors.Is(err, ErrUndeliverable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.maxAttempts))
	return err
}

func (d *Dispatcher) logFailure(ev Event, err error) {
	d.logger.Error("notification failed",
		"event_type", ev.Type,
		"tenant_id", ev.TenantID,
		"booking_id", ev.BookingID,
		"kind", apperr.KindOf(err).String(),
		"err", err,
	)
}

func (d *Dispatcher) logDropped(ev Event) {
	d.logger.Error("notification dropped",
		"reason", "shutdown",
		"event_type", ev.Type,
		"tenant_id", ev.TenantID,
		"booking_id", ev.BookingID,
	)
}
