package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
)

// ErrUndeliverable marks a failure that retrying cannot fix.
var ErrUndeliverable = errors.New("undeliverable")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes events as JSON, keyed by booking id.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(writer *kafka.Writer, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndeliverable, err)
	}
	msg := kafka.Message{
		Topic:   s.topic,
		Key:     []byte(ev.BookingID),
		Value:   payload,
		Headers: kafkax.InjectTraceHeaders(ctx, kafkax.EventHeaders(ev.ID, ev.Type, ev.TenantID)),
	}
	return s.writer.WriteMessages(ctx, msg)
}

// LogSink writes events to the log; used when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(_ context.Context, ev Event) error {
	s.Logger.Info("booking event", "event_type", ev.Type, "tenant_id", ev.TenantID, "booking_id", ev.BookingID)
	return nil
}

// SMTPEmailSink sends mail via unauthenticated SMTP (Mailpit-compatible).
type SMTPEmailSink struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmailSink(host, port, from string) *SMTPEmailSink {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@slotkeeper.local"
	}
	return &SMTPEmailSink{
		addr: strings.TrimSpace(host) + ":" + strings.TrimSpace(port),
		from: from,
		send: smtp.SendMail,
	}
}

func (s *SMTPEmailSink) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrUndeliverable, to, err)
	}
	return s.send(s.addr, nil, s.from, []string{addr.Address}, buildMessage(s.from, addr.Address, subject, body))
}

// buildMessage renders a minimal RFC 5322 message. The subject is
// Q-encoded whenever it holds control or non-ASCII characters, so
// tenant-supplied names cannot add header lines.
func buildMessage(from, to, subject, body string) []byte {
	subject = mime.QEncoding.Encode("utf-8", subject)
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, to, subject, strings.ReplaceAll(body, "\n", "\r\n"),
	))
}
