package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// RedisFailureCounter keeps failed logins per IP in a sorted set scored by
// unix milliseconds. Entries older than the retention are trimmed on write and
// the key expires after the retention when the IP goes quiet.
type RedisFailureCounter struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisFailureCounter returns a counter that keeps failures for retention
// (at least the brute-force window).
func NewRedisFailureCounter(client *redis.Client, retention time.Duration) *RedisFailureCounter {
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	return &RedisFailureCounter{client: client, prefix: "sessionguard:login_failed:", retention: retention}
}

func (c *RedisFailureCounter) key(ip string) string {
	return c.prefix + ip
}

// RecordFailure adds one failure for ip at the given time.
func (c *RedisFailureCounter) RecordFailure(ctx context.Context, ip string, at time.Time) error {
	key := c.key(ip)
	score := float64(at.UnixMilli())
	cutoff := strconv.FormatInt(at.Add(-c.retention).UnixMilli(), 10)
	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: ulid.Make().String()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
	pipe.Expire(ctx, key, c.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// CountFailures counts failures for ip with a timestamp at or after since.
func (c *RedisFailureCounter) CountFailures(ctx context.Context, ip string, since time.Time) (int64, error) {
	n, err := c.client.ZCount(ctx, c.key(ip), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count login failures: %w", err)
	}
	return n, nil
}
