// Package queue mirrors JobEngine's in-flight claim set into Redis, so a
// claim survives a worker process restart without a job silently
// double-running before the database's own atomic UPDATE..WHERE catches
// up. It is an
// optional durability layer: jobengine.Engine works without one, falling
// back to its in-memory sync.Map.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis connection backing the durable mirror.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Mirror is a Redis-backed claim mirror keyed by job id.
type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

const keyPrefix = "agentctx:jobengine:inflight:"

// New dials rdb eagerly, failing fast if Redis is unreachable, so infra
// problems surface at startup rather than on first use.
func New(ctx context.Context, cfg Config, claimTTL time.Duration) (*Mirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: ping redis: %w", err)
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Minute
	}
	return &Mirror{rdb: rdb, ttl: claimTTL}, nil
}

// TryMark records jobID as in-flight, returning false if it is already
// marked (another process holds the claim). Backed by SETNX so the
// check-and-set is atomic across every worker process sharing this
// Redis instance.
func (m *Mirror) TryMark(ctx context.Context, jobID string) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, keyPrefix+jobID, 1, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("queue: mark %s: %w", jobID, err)
	}
	return ok, nil
}

// Unmark releases jobID's claim once processing finishes, whether it
// succeeded or failed.
func (m *Mirror) Unmark(ctx context.Context, jobID string) error {
	if err := m.rdb.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("queue: unmark %s: %w", jobID, err)
	}
	return nil
}

// InFlightCount reports how many claims are currently mirrored.
func (m *Mirror) InFlightCount(ctx context.Context) (int64, error) {
	var count int64
	iter := m.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

func (m *Mirror) Close() error { return m.rdb.Close() }
