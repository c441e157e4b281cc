// Package notify delivers chat messages with bounded retries. Delivery-layer
// failures (the provider rejected the message or could not be reached) are
// retried with exponential backoff; anything else aborts immediately.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxRetries is the number of delivery attempts per message.
const DefaultMaxRetries = 3

// ParseModeHTML selects Telegram's HTML formatting.
const ParseModeHTML = "HTML"

// Message is a single outbound notification.
type Message struct {
	ChatID         int64
	Text           string
	ParseMode      string
	DisablePreview bool
}

// Transport performs one delivery attempt.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFactory builds a fresh Transport for every attempt so a broken
// connection or proxy handle is not reused.
type TransportFactory func() (Transport, error)

// DeliveryError marks a failure the provider reported (or a network failure
// reaching it). Only these are retried.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "delivery failed: " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// UnexpectedDeliveryError wraps any other failure; it is never retried.
type UnexpectedDeliveryError struct {
	Err error
}

func (e *UnexpectedDeliveryError) Error() string { return "unexpected delivery error: " + e.Err.Error() }
func (e *UnexpectedDeliveryError) Unwrap() error { return e.Err }

// Sender sends messages through transports produced by NewTransport.
type Sender struct {
	NewTransport TransportFactory
	MaxRetries   int
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// NewSender returns a Sender with the default retry bound.
func NewSender(factory TransportFactory) *Sender {
	return &Sender{NewTransport: factory, MaxRetries: DefaultMaxRetries}
}

func (s *Sender) clock() clockwork.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clockwork.NewRealClock()
}

func (s *Sender) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Backoff returns the wait after the failed attempt with the given zero-based index.
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Send delivers msg and reports whether it was confirmed. It never returns an
// error; failed admin alerts must not trigger further alerts.
func (s *Sender) Send(ctx context.Context, msg Message) bool {
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	log := s.logger().With(slog.Int64("chat_id", msg.ChatID), slog.String("component", "notify"))
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.attempt(ctx, msg)
		if err == nil {
			log.Info("message delivered", slog.Int("attempt", attempt+1))
			return true
		}
		var derr *DeliveryError
		if !errors.As(err, &derr) {
			log.Error("message delivery aborted", slog.Int("attempt", attempt+1), slog.Any("err", &UnexpectedDeliveryError{Err: err}))
			return false
		}
		if attempt == maxRetries-1 {
			log.Error("message delivery gave up", slog.Int("attempts", maxRetries), slog.Any("err", err))
			return false
		}
		wait := Backoff(attempt)
		log.Warn("message delivery failed; retrying", slog.Int("attempt", attempt+1), slog.Duration("backoff", wait), slog.Any("err", err))
		select {
		case <-ctx.Done():
			log.Warn("message delivery canceled", slog.Any("err", ctx.Err()))
			return false
		case <-s.clock().After(wait):
		}
	}
	return false
}

// SendText sends a plain-text message with link previews disabled.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) bool {
	return s.Send(ctx, Message{ChatID: chatID, Text: text, DisablePreview: true})
}

func (s *Sender) attempt(ctx context.Context, msg Message) error {
	if s.NewTransport == nil {
		return errors.New("no transport configured")
	}
	t, err := s.NewTransport()
	if err != nil {
		return err
	}
	return t.Send(ctx, msg)
}
