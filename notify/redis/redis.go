package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm/notify"
)

// Publisher publishes refresh events as JSON on a Redis channel
type Publisher struct {
	client  *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewPublisher creates a publisher on channel
func NewPublisher(client *goredis.Client, channel string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, channel: channel, logger: logger}
}

// NewClient creates a Redis client for addr
func NewClient(addr, password string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
}

func (p *Publisher) Refresh(ctx context.Context, event notify.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish refresh event: %w", err)
	}

	p.logger.Debug("published refresh event",
		zap.String("channel", p.channel),
		zap.String("reason", event.Reason),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Close closes the underlying client
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ notify.Refresher = (*Publisher)(nil)
