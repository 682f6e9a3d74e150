package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// Subscription delivers the events of one session until it is closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Subscriber opens subscriptions to session channels.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

type redisSubscriber struct {
	rdb *redis.Client
}

// NewRedisSubscriber creates a Subscriber backed by Redis Pub/Sub.
func NewRedisSubscriber(rdb *redis.Client) Subscriber {
	return &redisSubscriber{rdb: rdb}
}

// Subscribe waits for Redis to confirm the subscription so that no event
// published after it returns is missed.
func (s *redisSubscriber) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	channel := SessionChannel(sessionID)
	pubsub := s.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{pubsub: pubsub, events: make(chan Event)}
	go sub.forward(channel)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
}

func (s *redisSubscription) forward(channel string) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		event, err := Decode([]byte(msg.Payload))
		if err != nil {
			slog.Error("Dropping malformed event", "channel", channel, "error", err)
			continue
		}
		s.events <- event
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
