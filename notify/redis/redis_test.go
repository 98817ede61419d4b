package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm/notify"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Publisher) {
	mr := miniredis.RunT(t)
	client := NewClient(mr.Addr(), "")
	t.Cleanup(func() { client.Close() })
	return mr, NewPublisher(client, "tickeralarm:refresh", zap.NewNop())
}

func TestPublisher_Refresh(t *testing.T) {
	_, pub := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := pub.client.Subscribe(ctx, "tickeralarm:refresh")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	event := notify.Event{
		Reason:  notify.ReasonReconciled,
		At:      time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC),
		Tickers: 3,
		Alarms:  7,
	}
	require.NoError(t, pub.Refresh(ctx, event))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tickeralarm:refresh", msg.Channel)

	var got notify.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, event.Reason, got.Reason)
	assert.Equal(t, event.Tickers, got.Tickers)
	assert.Equal(t, event.Alarms, got.Alarms)
	assert.True(t, event.At.Equal(got.At))
}

func TestPublisher_RefreshWithoutServer(t *testing.T) {
	mr, pub := setupTestRedis(t)
	mr.Close()

	err := pub.Refresh(context.Background(), notify.Event{Reason: notify.ReasonScheduled})
	assert.Error(t, err)
}
