package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"logistics-service/internal/models"
)

// SnapshotCache holds recently fetched tracking snapshots. Misses and cache
// failures look the same to callers.
type SnapshotCache interface {
	Get(ctx context.Context, tenantID, awbNumber string) (*models.TrackingSnapshot, bool)
	Set(ctx context.Context, tenantID, awbNumber string, snapshot *models.TrackingSnapshot)
}

// RedisSnapshotCache stores snapshots as JSON with a TTL
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// NewRedisSnapshotCache creates a snapshot cache on a redis client
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration, logger *logrus.Entry) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisSnapshotCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "tracking_cache"),
	}
}

func snapshotKey(tenantID, awbNumber string) string {
	return fmt.Sprintf("logistics:tracking:%s:%s", tenantID, awbNumber)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, tenantID, awbNumber string) (*models.TrackingSnapshot, bool) {
	data, err := c.client.Get(ctx, snapshotKey(tenantID, awbNumber)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Tracking cache read failed")
		}
		return nil, false
	}

	var snapshot models.TrackingSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.WithError(err).Warn("Discarding unreadable tracking cache entry")
		return nil, false
	}
	return &snapshot, true
}

func (c *RedisSnapshotCache) Set(ctx context.Context, tenantID, awbNumber string, snapshot *models.TrackingSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, snapshotKey(tenantID, awbNumber), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Tracking cache write failed")
	}
}

type noopSnapshotCache struct{}

func (noopSnapshotCache) Get(context.Context, string, string) (*models.TrackingSnapshot, bool) {
	return nil, false
}

func (noopSnapshotCache) Set(context.Context, string, string, *models.TrackingSnapshot) {}
