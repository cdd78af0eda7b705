// Package memory — реализации хранилищ в памяти процесса: режим -memory (без Postgres и Redis) и тесты.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmchat/internal/storage"
)

// Client implements storage.Store.
type Client struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	subs map[string][]storage.PushSubscription
	now  func() time.Time
}

func New() *Client {
	return &Client{
		hits: make(map[string][]time.Time),
		subs: make(map[string][]storage.PushSubscription),
		now:  time.Now,
	}
}

func (c *Client) Close() error { return nil }

// Allow — скользящее окно по отметкам времени.
func (c *Client) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cutoff := now.Add(-window)
	kept := c.hits[key][:0]
	for _, t := range c.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= max {
		c.hits[key] = kept
		return false, nil
	}
	c.hits[key] = append(kept, now)
	return true, nil
}

func (c *Client) AddPushSubscription(ctx context.Context, userID string, sub storage.PushSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := without(c.subs[userID], sub.Endpoint)
	list = append(list, sub)
	if len(list) > storage.MaxSubsPerUser {
		list = list[len(list)-storage.MaxSubsPerUser:]
	}
	c.subs[userID] = list
	return nil
}

func (c *Client) PushSubscriptions(ctx context.Context, userID string) ([]storage.PushSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]storage.PushSubscription, len(c.subs[userID]))
	copy(out, c.subs[userID])
	return out, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := without(c.subs[userID], endpoint)
	if len(list) == 0 {
		delete(c.subs, userID)
		return nil
	}
	c.subs[userID] = list
	return nil
}

func without(list []storage.PushSubscription, endpoint string) []storage.PushSubscription {
	out := make([]storage.PushSubscription, 0, len(list))
	for _, s := range list {
		if s.Endpoint != endpoint {
			out = append(out, s)
		}
	}
	return out
}
