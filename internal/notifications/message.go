// Package notifications delivers workflow events to back-office users over
// Redis pub/sub, the mail outbox, and connected websockets.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"secmaster/internal/observability"
)

// Event names what happened to a change request.
type Event string

const (
	EventProposalPending  Event = "proposal_pending"
	EventProposalApproved Event = "proposal_approved"
	EventProposalRejected Event = "proposal_rejected"
)

// Recipient is the addressee resolved from the user directory.
type Recipient struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Message is one notification to one user.
type Message struct {
	// ID identifies the mail job; the Notifier assigns one when empty.
	ID        string    `json:"id,omitempty"`
	Event     Event     `json:"event"`
	Kind      string    `json:"kind"`
	RequestID uint      `json:"request_id"`
	Recipient Recipient `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Reason    string    `json:"reason,omitempty"`
}

// Sink delivers messages. Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// LogSink writes messages to the structured log. Used when no Redis is configured.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(ctx context.Context, msg Message) error {
	observability.Logger.InfoContext(ctx, "notification",
		slog.String("event", string(msg.Event)),
		slog.String("kind", msg.Kind),
		slog.Uint64("request_id", uint64(msg.RequestID)),
		slog.String("to", msg.Recipient.Email),
		slog.String("subject", msg.Subject),
	)
	return nil
}

func encode(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
