package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTier is the production remoteTier, backed by a pooled Redis client.
type redisTier struct {
	client *redis.Client
}

// RedisConfig configures the remote tier's connection.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	KeyPrefix    string
}

func newRedisTier(cfg RedisConfig) *redisTier {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 50
	}
	return &redisTier{client: redis.NewClient(opts)}
}

func (t *redisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := t.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (t *redisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.client.Set(ctx, key, value, ttl).Err()
}

func (t *redisTier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *redisTier) Close() error {
	return t.client.Close()
}
