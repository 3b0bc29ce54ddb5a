package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uniosun/tacdra-api/internal/models"
)

const trackingKeyPrefix = "tacdra:tracking:"

// TrackingCache caches public tracking views in Redis. Cache faults are
// logged and treated as misses; the database remains the source of truth.
type TrackingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTrackingCache constructs the cache with the given entry TTL.
func NewTrackingCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TrackingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingCache{client: client, ttl: ttl, logger: logger}
}

// GetStatus returns the cached view for a tracking code, if present.
func (c *TrackingCache) GetStatus(ctx context.Context, code string) (*models.PublicStatusView, bool) {
	data, err := c.client.Get(ctx, trackingKeyPrefix+code).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("tracking cache read failed", zap.Error(err), zap.String("code", code))
		}
		return nil, false
	}
	var view models.PublicStatusView
	if err := json.Unmarshal(data, &view); err != nil {
		c.logger.Warn("tracking cache entry corrupt", zap.Error(err), zap.String("code", code))
		return nil, false
	}
	return &view, true
}

// SetStatus stores a view under its tracking code.
func (c *TrackingCache) SetStatus(ctx context.Context, code string, view *models.PublicStatusView) {
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, trackingKeyPrefix+code, data, c.ttl).Err(); err != nil {
		c.logger.Warn("tracking cache write failed", zap.Error(err), zap.String("code", code))
	}
}

// Invalidate drops the cached view after a status change.
func (c *TrackingCache) Invalidate(ctx context.Context, code string) {
	if err := c.client.Del(ctx, trackingKeyPrefix+code).Err(); err != nil {
		c.logger.Warn("tracking cache invalidation failed", zap.Error(err), zap.String("code", code))
	}
}
