// Package cache keeps recently computed zone scores in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jengzang/riskzone-engine/internal/metrics"
	"github.com/jengzang/riskzone-engine/internal/models"
	"go.uber.org/zap"
)

const (
	scoreKeyPattern = "riskzone:score:%s"

	// DefaultTTL bounds how stale a cached score may be
	DefaultTTL = 5 * time.Minute
)

// Config holds the redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings redis
func NewRedisClient(cfg Config, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}

// ScoreCache stores zone scores as JSON under one key per cell
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewScoreCache creates a score cache; a non-positive ttl uses DefaultTTL
func NewScoreCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ScoreCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ScoreCache{client: client, ttl: ttl, logger: logger}
}

func scoreKey(cellID string) string {
	return fmt.Sprintf(scoreKeyPattern, cellID)
}

// Get returns the cached score of a cell; ok is false on a miss
func (c *ScoreCache) Get(ctx context.Context, cellID string) (score *models.RiskZoneScore, ok bool, err error) {
	raw, err := c.client.Get(ctx, scoreKey(cellID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ScoreCacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.ScoreCacheLookups.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to read cached score: %w", err)
	}

	score = &models.RiskZoneScore{}
	if err := json.Unmarshal(raw, score); err != nil {
		metrics.ScoreCacheLookups.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to decode cached score: %w", err)
	}
	metrics.ScoreCacheLookups.WithLabelValues("hit").Inc()
	return score, true, nil
}

// Set caches a score for the configured ttl
func (c *ScoreCache) Set(ctx context.Context, score *models.RiskZoneScore) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to encode score: %w", err)
	}
	if err := c.client.Set(ctx, scoreKey(score.CellID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache score: %w", err)
	}
	return nil
}

// ScoreUpdated refreshes the cache entry after the engine commits a new score
func (c *ScoreCache) ScoreUpdated(ctx context.Context, score *models.RiskZoneScore) error {
	return c.Set(ctx, score)
}
