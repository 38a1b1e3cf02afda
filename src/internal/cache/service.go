package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/models"
	"expense-validation-svc/src/internal/validation"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type verdictCache struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

// NewVerdictCache returns a redis-backed verdict cache keyed by image digest.
func NewVerdictCache(client *redis.Client, cfg *config.Configuration) validation.VerdictCache {
	return &verdictCache{
		client: client,
		cfg:    &cfg.Cache,
	}
}

func (c *verdictCache) GetVerdict(ctx context.Context, digest string) (*validation.Verdict, error) {
	key := c.cfg.VerdictKeyPrefix + digest

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.WithField("key", key).Debug("Verdict not found in cache")
			return nil, nil // Not an error, just not found
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get verdict from cache")
		return nil, models.ErrRedisGet
	}

	var verdict validation.Verdict
	if err := json.Unmarshal([]byte(data), &verdict); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to unmarshal cached verdict")
		return nil, models.ErrRedisGet
	}

	logrus.WithField("key", key).Debug("Verdict retrieved from cache")
	return &verdict, nil
}

func (c *verdictCache) SaveVerdict(ctx context.Context, digest string, verdict *validation.Verdict) error {
	key := c.cfg.VerdictKeyPrefix + digest

	data, err := json.Marshal(verdict)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal verdict for cache")
		return models.ErrRedisSet
	}

	ttl := time.Duration(c.cfg.VerdictExpirationMinutes) * time.Minute
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to cache verdict")
		return models.ErrRedisSet
	}

	logrus.WithField("key", key).Debug("Verdict cached")
	return nil
}
