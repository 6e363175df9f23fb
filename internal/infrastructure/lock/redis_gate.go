package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when the gate could not be taken within the wait budget.
var ErrBusy = errors.New("account gate busy")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGate is a short-lived mutual exclusion per key shared by every API
// instance. Redis failures open the gate instead of rejecting logins.
type RedisGate struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *logrus.Logger
}

type Config struct {
	Prefix string
	TTL    time.Duration // lock lifetime if the holder dies
	Wait   time.Duration // how long Acquire keeps retrying
	Retry  time.Duration
}

func NewRedisGate(rdb *redis.Client, cfg Config, logger *logrus.Logger) *RedisGate {
	g := &RedisGate{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL, wait: cfg.Wait, retry: cfg.Retry, logger: logger}
	if g.prefix == "" {
		g.prefix = "gate:"
	}
	if g.ttl <= 0 {
		g.ttl = 10 * time.Second
	}
	if g.wait <= 0 {
		g.wait = 3 * time.Second
	}
	if g.retry <= 0 {
		g.retry = 25 * time.Millisecond
	}
	return g
}

func (g *RedisGate) Acquire(ctx context.Context, key string) (func(), error) {
	k := g.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(g.wait)

	for {
		ok, err := g.rdb.SetNX(ctx, k, token, g.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// fail-open if redis errors
			if g.logger != nil {
				g.logger.WithError(err).WithField("key", k).Warn("account gate unavailable")
			}
			return func() {}, nil
		}
		if ok {
			return func() { g.release(k, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrBusy
		}
		t := time.NewTimer(g.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (g *RedisGate) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, g.rdb, []string{key}, token).Err(); err != nil && g.logger != nil {
		g.logger.WithError(err).WithField("key", key).Warn("account gate release failed")
	}
}
