package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

//go:generate mockgen -destination=mocks/publisher.go -package=mocks . Publisher

// Publisher delivers session events to every subscriber of the session channel.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, event Event) error
}

type redisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a Publisher backed by Redis Pub/Sub.
func NewRedisPublisher(rdb *redis.Client) Publisher {
	return &redisPublisher{rdb: rdb}
}

func (p *redisPublisher) Publish(ctx context.Context, sessionID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, SessionChannel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}
