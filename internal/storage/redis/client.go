package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmchat/internal/storage"
)

const (
	rateKeyPrefix = "rate:"
	subsKeyPrefix = "push:subs:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Allow — фиксированное окно: INCR rate:{key}, на первом хите ставим EXPIRE window.
func (c *Client) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	k := rateKeyPrefix + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate incr: %w", err)
	}
	if n == 1 {
		if err := c.cli.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("redis rate expire: %w", err)
		}
	}
	return n <= int64(max), nil
}

// AddPushSubscription хранит последние MaxSubsPerUser подписок пользователя в списке push:subs:{user}.
func (c *Client) AddPushSubscription(ctx context.Context, userID string, sub storage.PushSubscription) error {
	if err := c.RemovePushSubscription(ctx, userID, sub.Endpoint); err != nil {
		return err
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("redis push subscription encode: %w", err)
	}
	key := subsKeyPrefix + userID
	pipe := c.cli.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -storage.MaxSubsPerUser, -1)
	pipe.Expire(ctx, key, storage.SubscriptionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push subscribe: %w", err)
	}
	return nil
}

func (c *Client) PushSubscriptions(ctx context.Context, userID string) ([]storage.PushSubscription, error) {
	list, err := c.cli.LRange(ctx, subsKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis push subscriptions: %w", err)
	}
	subs := make([]storage.PushSubscription, 0, len(list))
	for _, item := range list {
		var sub storage.PushSubscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	key := subsKeyPrefix + userID
	list, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis push unsubscribe: %w", err)
	}
	for _, item := range list {
		var sub storage.PushSubscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint == endpoint {
			if err := c.cli.LRem(ctx, key, 0, item).Err(); err != nil {
				return fmt.Errorf("redis push unsubscribe: %w", err)
			}
		}
	}
	return nil
}
