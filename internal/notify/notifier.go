// Package notify delivers trade notifications. Owner-addressed messages
// (position closed, exit failed) are routed to the owner's Telegram chat;
// broadcast alerts go to the operator channels. An event allow-list controls
// which event types are forwarded at all.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Sender is a single delivery channel. recipient selects the destination
// within the channel; an empty recipient means the channel's default
// (operator) destination. Channels without per-recipient addressing ignore
// owner-addressed messages rather than leaking them to a shared destination.
type Sender interface {
	Send(ctx context.Context, recipient, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans a notification out to its senders. Notify addresses the
// position owner and honors the event allow-list; NotifyAll broadcasts to
// the default destinations unconditionally.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty means all
	logger  *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. Only event types in
// the events slice pass the Notify filter; an empty slice allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers a message addressed to the given owner, provided the event
// type passes the allow-list. The owner's Telegram id doubles as the chat id
// on channels that support per-recipient addressing.
func (n *Notifier) Notify(ctx context.Context, event string, ownerID int64, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, strconv.FormatInt(ownerID, 10), title, message)
}

// NotifyAll broadcasts to every sender's default destination, bypassing the
// event filter. Used for operator alerts.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, "", title, message)
}

// dispatch sends through every channel. Per-sender failures are collected
// into one error; a failing sender never blocks delivery on the others.
func (n *Notifier) dispatch(ctx context.Context, recipient, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, recipient, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("recipient", recipient),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("recipient", recipient),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
