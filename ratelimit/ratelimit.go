// Package ratelimit implements a Redis-backed fixed-window counter, the
// INCR+EXPIRE pattern a velocity check uses in front of a slower
// storage.Store scan. It fronts the Fraud Detector's spam check, which
// would otherwise re-query every submission a worker has made in the
// last minute on every single new submission.
package ratelimit

import (
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/crowdtask-platform/engine/log"
)

// client is the narrow slice of *redis.Client this package calls
// through, reduced to plain (value, error) returns so tests can swap in
// a mock without a live Redis server or depending on redis.Cmd internals.
type client interface {
	Incr(key string) (int64, error)
	Expire(key string, expiration time.Duration) error
}

type redisClient struct {
	c *redis.Client
}

func (r redisClient) Incr(key string) (int64, error) { return r.c.Incr(key).Result() }

func (r redisClient) Expire(key string, expiration time.Duration) error {
	return r.c.Expire(key, expiration).Err()
}

// Counter increments a per-key counter in Redis and reports the new
// count within the current window.
type Counter struct {
	client client
	prefix string
	log *log.Logger
}

func New(c *redis.Client, prefix string) *Counter {
	return &Counter{client: redisClient{c: c}, prefix: prefix, log: log.New("ratelimit")}
}

// Bump increments the counter for key and, if this is the key's first
// increment, arms it to expire after window so the count resets to a
// fresh fixed window rather than growing unbounded. A Redis error
// degrades to "not limited" the same way the Fraud Detector treats a
// failed storage query: best-effort, never a hard failure.
func (c *Counter) Bump(key string, window time.Duration) (count int64, ok bool) {
	redisKey := c.prefix + ":" + key
	n, err := c.client.Incr(redisKey)
	if err != nil {
		c.log.Warn("redis velocity counter failed, degrading to not limited", "key", key, "err", err)
		return 0, false
	}
	if n == 1 {
		if err := c.client.Expire(redisKey, window); err != nil {
			c.log.Warn("redis velocity counter expire failed", "key", key, "err", err)
		}
	}
	return n, true
}
