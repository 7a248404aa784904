package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"launchpad/internal/domain"
)

// RedisPublisher publishes notifications as JSON on a per-recipient channel
// so connected clients can be pushed updates.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher backed by Redis.
func NewRedisPublisher(addr, password string, db int, channel string) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: rdb, channel: channel}
}

// Channel returns the channel name for a recipient.
func (p *RedisPublisher) Channel(userID string) string {
	return fmt.Sprintf("%s:%s", p.channel, userID)
}

func (p *RedisPublisher) Enqueue(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.Channel(n.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe listens on a recipient's channel.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return p.client.Subscribe(ctx, p.Channel(userID))
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
