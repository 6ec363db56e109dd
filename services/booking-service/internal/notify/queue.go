package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
)

const DefaultQueueSize = 256

// Queue is a bounded in-process hand-off between committers and the
// Dispatcher. Enqueue never blocks.
type Queue struct {
	ch     chan Event
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{ch: make(chan Event, size), logger: logger}
}

// Enqueue stamps ev with an id and the caller's trace context and hands it
// to the dispatcher. It reports false when the queue is full or closed; the
// event is dropped and logged.
func (q *Queue) Enqueue(ctx context.Context, ev Event) bool {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.trace = otelx.Carry(ctx)

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("notification dropped", "reason", "queue closed", "event_type", ev.Type, "booking_id", ev.BookingID)
		return false
	}
	select {
	case q.ch <- ev:
		return true
	default:
		q.logger.Warn("notification dropped", "reason", "queue full", "event_type", ev.Type, "booking_id", ev.BookingID)
		return false
	}
}

// Close stops accepting events. The dispatcher drains what is left and
// returns once the channel is empty.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
