package execution

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teranos/tradepulse/errors"
)

// RedisConfig locates the redis instance shared by gateway processes
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

const redisPingTimeout = 5 * time.Second

// NewRedisClient connects and verifies the connection with a ping
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.NewInvalidRequest("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Mark(errors.Wrapf(err, "redis ping %s failed", cfg.Address), errors.ErrUnavailable)
	}
	return client, nil
}
