package helpers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient initializes a redis client
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// PingRedis checks connectivity with a bounded wait.
func PingRedis(ctx context.Context, rdb *redis.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(c).Err()
}
