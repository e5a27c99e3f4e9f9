package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus on a Redis PUBLISH/SUBSCRIBE channel.
type Redis struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
}

// NewRedis returns a Bus on channel. A nil client yields a bus whose
// operations fail with ErrUnavailable, which lets the service run while
// Redis is down at startup.
func NewRedis(rdb *redis.Client, channel string, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{rdb: rdb, channel: channel, log: log.With("component", "bus")}
}

// Publish sends payload to every subscriber of the channel.
func (b *Redis) Publish(ctx context.Context, payload []byte) error {
	if b.rdb == nil {
		return ErrUnavailable
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe consumes the channel until ctx is cancelled.
func (b *Redis) Subscribe(ctx context.Context, h Handler) error {
	if b.rdb == nil {
		return ErrUnavailable
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info("subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscribe %s: %w", b.channel, ErrUnavailable)
			}
			h(ctx, []byte(msg.Payload))
		}
	}
}

// Ping reports whether Redis answers.
func (b *Redis) Ping(ctx context.Context) error {
	if b.rdb == nil {
		return ErrUnavailable
	}
	return b.rdb.Ping(ctx).Err()
}
