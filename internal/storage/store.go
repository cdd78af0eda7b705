// Package storage — быстрые эфемерные данные рядом с основной БД:
// счётчики rate limit и web push подписки.
// Реализации: redis.Client (REDIS_URL задан), memory.Client (без Redis, тесты).
package storage

import (
	"context"
	"time"
)

// PushSubscription — подписка браузера (PushManager.subscribe()).
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

const (
	MaxSubsPerUser  = 10
	SubscriptionTTL = 30 * 24 * time.Hour
)

type Store interface {
	// Allow counts one hit for key and reports whether it is within max per window.
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
	AddPushSubscription(ctx context.Context, userID string, sub PushSubscription) error
	PushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error)
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
	Close() error
}
