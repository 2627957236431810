package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"pulsefeed/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "broadcast:"

// RelayChannel derives the Redis channel name for a topic.
func RelayChannel(topic string) string {
	return relayChannelPrefix + topic
}

// Relay is a Transport that shares topics between server processes through
// Redis pub/sub. Every process subscribes to the relay pattern and forwards
// what it receives to its local Hub, so a frame reaches each subscriber once.
// Until the subscription is confirmed, or when publishing fails, frames go
// straight to the local Hub.
type Relay struct {
	rdb        *redis.Client
	local      Transport
	subscribed atomic.Bool
}

// NewRelay wires rdb to the local transport. rdb may be nil.
func NewRelay(rdb *redis.Client, local Transport) *Relay {
	return &Relay{rdb: rdb, local: local}
}

// Active reports whether frames currently travel through Redis.
func (r *Relay) Active() bool {
	return r.rdb != nil && r.subscribed.Load()
}

// Deliver publishes frame to the topic's Redis channel.
func (r *Relay) Deliver(ctx context.Context, topic string, frame []byte) error {
	if !r.Active() {
		return r.local.Deliver(ctx, topic, frame)
	}
	if err := r.rdb.Publish(ctx, RelayChannel(topic), frame).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "relay publish failed, delivering locally",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
		return r.local.Deliver(ctx, topic, frame)
	}
	return nil
}

// Start subscribes to every relay channel and forwards messages to the local
// transport until ctx is cancelled. It returns once the subscription is
// confirmed by Redis.
func (r *Relay) Start(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}

	sub := r.rdb.PSubscribe(ctx, relayChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to relay: %w", err)
	}
	ch := sub.Channel()
	r.subscribed.Store(true)

	go func() {
		defer func() {
			r.subscribed.Store(false)
			_ = sub.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.forward(ctx, msg)
			}
		}
	}()

	return nil
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			middleware.Logger.Error("panic in relay subscriber",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	topic := strings.TrimPrefix(msg.Channel, relayChannelPrefix)
	if err := r.local.Deliver(ctx, topic, []byte(msg.Payload)); err != nil {
		middleware.Logger.Warn("relay forward failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
	}
}
