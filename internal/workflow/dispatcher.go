package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"secmaster/internal/directory"
	"secmaster/internal/models"
	"secmaster/internal/notifications"
	"secmaster/internal/observability"
)

const defaultNotifyTimeout = 10 * time.Second

// ProfileResolver looks a user up in the directory.
type ProfileResolver interface {
	GetByID(ctx context.Context, userID uint) (directory.Profile, bool)
}

// Dispatcher sends workflow notifications after the transaction commits.
// Delivery is best effort: failures are logged and counted, never returned.
// A nil Dispatcher drops every notification.
type Dispatcher struct {
	sink     notifications.Sink
	profiles ProfileResolver
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher delivering to sink.
func NewDispatcher(sink notifications.Sink, profiles ProfileResolver, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &Dispatcher{sink: sink, profiles: profiles, timeout: timeout}
}

// Notice is one event to deliver to one user.
type Notice struct {
	Event       notifications.Event
	Kind        string
	Label       string
	RequestID   uint
	RequestType models.RequestType
	RecipientID uint
	Reason      string
}

// Notify delivers n in the background. The caller's cancellation does not
// abort delivery; the dispatcher timeout bounds it instead.
func (d *Dispatcher) Notify(ctx context.Context, n Notice) {
	if d == nil || d.sink == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		observability.NotificationsSent.WithLabelValues(string(n.Event), "dropped").Inc()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.deliver(ctx, n)
	}()
}

// Wait stops accepting notifications and blocks until every in-flight one
// finished or ctx is done. Notify calls after Wait are dropped.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notice) {
	defer func() {
		if r := recover(); r != nil {
			observability.NotificationsSent.WithLabelValues(string(n.Event), "panic").Inc()
			observability.Logger.ErrorContext(ctx, "panic delivering notification", slog.Any("panic", r))
		}
	}()

	var profile directory.Profile
	found := false
	if d.profiles != nil {
		profile, found = d.profiles.GetByID(ctx, n.RecipientID)
	}
	if !found {
		observability.NotificationsSent.WithLabelValues(string(n.Event), "skipped").Inc()
		observability.Logger.DebugContext(ctx, "notification recipient not in directory",
			slog.String("event", string(n.Event)), slog.Uint64("recipient_id", uint64(n.RecipientID)))
		return
	}

	msg := compose(n, profile)
	if err := d.sink.Send(ctx, msg); err != nil {
		observability.NotificationsSent.WithLabelValues(string(n.Event), "failed").Inc()
		observability.LogAsyncOperationError(ctx, "notify", err, map[string]interface{}{
			"event":        string(n.Event),
			"kind":         n.Kind,
			"request_id":   n.RequestID,
			"recipient_id": n.RecipientID,
		})
		return
	}
	observability.NotificationsSent.WithLabelValues(string(n.Event), "sent").Inc()
}

func compose(n Notice, p directory.Profile) notifications.Message {
	msg := notifications.Message{
		Event:     n.Event,
		Kind:      n.Kind,
		RequestID: n.RequestID,
		Recipient: notifications.Recipient{UserID: p.ID, Name: p.FullName(), Email: p.Email},
		Reason:    n.Reason,
	}
	switch n.Event {
	case notifications.EventProposalPending:
		msg.Subject = fmt.Sprintf("%s %s request #%d awaits your approval", n.Label, n.RequestType, n.RequestID)
		msg.Body = fmt.Sprintf("Hello %s, a %s request on a %s record has been submitted for your review.",
			p.FullName(), n.RequestType, n.Label)
	case notifications.EventProposalApproved:
		msg.Subject = fmt.Sprintf("%s %s request #%d was approved", n.Label, n.RequestType, n.RequestID)
		msg.Body = fmt.Sprintf("Hello %s, your %s request has been approved and applied.", p.FullName(), n.RequestType)
	case notifications.EventProposalRejected:
		msg.Subject = fmt.Sprintf("%s %s request #%d was rejected", n.Label, n.RequestType, n.RequestID)
		msg.Body = fmt.Sprintf("Hello %s, your %s request has been rejected. Reason: %s", p.FullName(), n.RequestType, n.Reason)
	}
	return msg
}
