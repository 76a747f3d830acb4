package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"peermesh/pkg/domain"
)

// RedisQueue holds notifications in a redis list per peer so held messages
// survive restarts. RPUSH/LRANGE preserve enqueue order.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, prefix: "notifications:held:"}
}

func (q *RedisQueue) key(peer domain.Address) string {
	return q.prefix + peer.String()
}

func (q *RedisQueue) Enqueue(ctx context.Context, notification *Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal held notification: %w", err)
	}
	if err := q.client.RPush(ctx, q.key(notification.Peer), payload).Err(); err != nil {
		return fmt.Errorf("enqueue held notification: %w", err)
	}
	return nil
}

func (q *RedisQueue) Drain(ctx context.Context, peer domain.Address) ([]*Notification, error) {
	key := q.key(peer)
	pipe := q.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain held notifications: %w", err)
	}
	raw, err := rangeCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("read held notifications: %w", err)
	}
	notifications := make([]*Notification, 0, len(raw))
	for _, payload := range raw {
		var notification Notification
		if err := json.Unmarshal([]byte(payload), &notification); err != nil {
			return nil, fmt.Errorf("unmarshal held notification: %w", err)
		}
		notifications = append(notifications, &notification)
	}
	return notifications, nil
}

func (q *RedisQueue) Len(ctx context.Context, peer domain.Address) (int, error) {
	length, err := q.client.LLen(ctx, q.key(peer)).Result()
	if err != nil {
		return 0, fmt.Errorf("held notification count: %w", err)
	}
	return int(length), nil
}
