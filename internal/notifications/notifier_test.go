package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"secmaster/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		Event:     EventProposalPending,
		Kind:      "security",
		RequestID: 12,
		Recipient: Recipient{UserID: 4, Name: "Ada Obi", Email: "ada@example.com"},
		Subject:   "Security change awaiting your approval",
	}
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil, "")
	assert.NoError(t, n.Send(context.Background(), sampleMessage()))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))
}

func TestNotifier_SendQueuesOutbox(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb, "")
	require.NoError(t, n.Send(context.Background(), sampleMessage()))

	items, err := mr.List(DefaultOutboxKey)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var got Message
	require.NoError(t, json.Unmarshal([]byte(items[0]), &got))
	assert.Equal(t, uint(4), got.Recipient.UserID)
	assert.Equal(t, EventProposalPending, got.Event)
	assert.Len(t, got.ID, 36)
}

func TestNotifier_SubscriberFeedsHub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub()
	client, err := hub.Register(4, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := NewNotifier(rdb, "")
	require.NoError(t, hub.StartWiring(ctx, n))

	require.NoError(t, n.Send(context.Background(), sampleMessage()))

	assert.Eventually(t, func() bool { return len(client.Send) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "notifications:user:4", cache.UserChannel(4))
}

func TestLogSink_Send(t *testing.T) {
	assert.NoError(t, LogSink{}.Send(context.Background(), sampleMessage()))
}
