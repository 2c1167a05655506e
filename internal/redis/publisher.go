package redis

import (
	"context"

	"hola-chat/internal/events"

	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// PublishChange fans a row change out on its table channel.
func (p *Publisher) PublishChange(ctx context.Context, change events.Change) error {
	data, err := change.Encode()
	if err != nil {
		return err
	}
	return p.Publish(ctx, events.TableChannel(change.Table), data)
}
