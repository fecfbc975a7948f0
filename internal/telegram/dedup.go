package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	updateKeyPrefix = "nexuslog:telegram:update:"
	DefaultDedupTTL = 24 * time.Hour
)

// Deduper drops webhook redeliveries of an update already seen. Forget
// releases an update whose processing did not finish so a redelivery is
// handled again.
type Deduper interface {
	FirstDelivery(ctx context.Context, updateID int64) (bool, error)
	Forget(ctx context.Context, updateID int64) error
}

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper connects to redisURL. A bare host:port is accepted as well
// as a redis:// URL.
func NewRedisDeduper(ctx context.Context, redisURL string, ttl time.Duration) (*RedisDeduper, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisDeduperWithClient(client, ttl), nil
}

func NewRedisDeduperWithClient(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// FirstDelivery records updateID and reports whether this is the first time
// it was seen.
func (d *RedisDeduper) FirstDelivery(ctx context.Context, updateID int64) (bool, error) {
	ok, err := d.client.SetNX(ctx, updateKey(updateID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, updateID int64) error {
	if err := d.client.Del(ctx, updateKey(updateID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

func updateKey(updateID int64) string {
	return updateKeyPrefix + strconv.FormatInt(updateID, 10)
}
