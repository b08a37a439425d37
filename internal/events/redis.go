package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"casare-orchestrator/internal/logging"
)

const channel = "orchestrator:events"

// RedisBus fans events out over a Redis Pub/Sub channel, adapted from the
// teacher's RedisQueue (XAdd/XReadGroup/XAck on a stream it treated as
// authoritative). Here Redis carries none of the state Postgres already
// owns — a Publish failure is logged and dropped, never retried or
// propagated to the caller.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus dials addr and verifies connectivity.
func NewRedisBus(addr string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Close() error { return b.client.Close() }

// Publish best-effort broadcasts ev. Errors are logged, never returned,
// since no orchestrator invariant depends on event delivery.
func (b *RedisBus) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Warn("events: marshal failed", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logging.Warn("events: publish failed", zap.Error(err))
	}
}

// Subscribe returns a channel of decoded events and an unsubscribe func.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, nil, err
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }, nil
}
