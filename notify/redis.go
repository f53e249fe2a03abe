package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"marketplace/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ChannelPrefix namespaces per-recipient channels: notifications:<email>.
const ChannelPrefix = "notifications:"

type RedisPublisher struct {
	rdb *redis.Client
	log *logrus.Logger
}

// NewRedis connects to Redis. It returns nil when no address is configured.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logrus.Logger) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.WithField("addr", cfg.Addr).Info("Redis notification publisher connected")
	return &RedisPublisher{rdb: rdb, log: log}, nil
}

func Channel(recipient string) string {
	return ChannelPrefix + strings.ToLower(recipient)
}

func (p *RedisPublisher) Notify(ctx context.Context, recipient string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel(recipient), payload).Err()
}

// Subscribe listens on the recipient's channel. Callers must close the returned PubSub.
func (p *RedisPublisher) Subscribe(ctx context.Context, recipient string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, Channel(recipient))
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
