package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mixsmvrt/api/internal/model"
)

// EventsChannel is the Redis pub/sub channel carrying job events.
const EventsChannel = "jobs:events"

// RedisBridge publishes job events to Redis and relays them from Redis into
// the local hub, so every server replica reaches its own subscribers.
type RedisBridge struct {
	rdb *redis.Client
	hub *Hub
	log *slog.Logger
}

// NewRedisBridge creates a bridge between rdb and hub.
func NewRedisBridge(rdb *redis.Client, hub *Hub, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{rdb: rdb, hub: hub, log: log}
}

// Publish sends an event to every replica.
func (b *RedisBridge) Publish(ctx context.Context, event model.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	if err := b.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}

// Start subscribes and relays events into the hub until ctx is done. The
// subscription is active when Start returns.
func (b *RedisBridge) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, EventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event model.JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Warn("dropping malformed job event", "error", err)
					continue
				}
				b.hub.Dispatch(event)
			}
		}
	}()

	return nil
}
