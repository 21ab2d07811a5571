package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"secmaster/internal/cache"
	"secmaster/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultOutboxKey is the Redis list the mail relay drains.
const DefaultOutboxKey = "mail:outbox"

// Notifier publishes messages to the recipient's Redis channel and queues
// them on the mail outbox.
type Notifier struct {
	rdb       *redis.Client
	outboxKey string
}

// NewNotifier creates a new Notifier using the provided Redis client.
func NewNotifier(rdb *redis.Client, outboxKey string) *Notifier {
	if outboxKey == "" {
		outboxKey = DefaultOutboxKey
	}
	return &Notifier{rdb: rdb, outboxKey: outboxKey}
}

// Send implements Sink. A nil client makes it a no-op.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if n.rdb == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	payload, err := encode(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	span, ctx := observability.TraceRedisOperation(ctx, "notify")
	defer span.End()
	_, err = n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, cache.UserChannel(msg.Recipient.UserID), payload)
		pipe.LPush(ctx, n.outboxKey, payload)
		return nil
	})
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// StartPatternSubscriber subscribes to every user channel and calls onMessage
// for each incoming message until ctx is cancelled.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, cache.UserChannelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", cache.UserChannelPattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in notification subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
