package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/tabletop/internal/metrics"
	"github.com/sakif/tabletop/internal/model"
)

// RedisBroker fans messages out through Redis pub/sub so that every server
// instance sees messages posted on any other. Each group has its own channel.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

func channelName(groupID int64) string {
	return fmt.Sprintf("tabletop:group:%d:chat", groupID)
}

func (b *RedisBroker) Publish(ctx context.Context, msg model.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: encoding message: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(msg.GroupID), payload).Err(); err != nil {
		return fmt.Errorf("chat: publishing to redis: %w", err)
	}
	metrics.RecordChatMessage("redis")
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// a message published right after Subscribe returns is not missed.
func (b *RedisBroker) Subscribe(ctx context.Context, groupID int64) (<-chan model.ChatMessage, error) {
	pubsub := b.client.Subscribe(ctx, channelName(groupID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("chat: subscribing to redis: %w", err)
	}
	metrics.SubscriberOpened()

	out := make(chan model.ChatMessage, SubscriberBuffer)
	go func() {
		defer metrics.SubscriberClosed()
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg model.ChatMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.logger.Warn("discarding malformed chat payload",
						slog.String("channel", m.Channel),
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- msg:
				default:
					b.logger.Warn("chat subscriber too slow, message dropped",
						slog.Int64("groupID", groupID),
						slog.Int64("messageID", msg.ID),
					)
				}
			}
		}
	}()

	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
