package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tindahan/backend/internal/domain"
)

type RedisSummaryCache struct {
	client *redis.Client
}

// NewRedisClient builds the client shared by the summary cache and the seed locker.
func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisSummaryCache(client *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Get(ctx context.Context, date time.Time) (*domain.DailySummary, bool, error) {
	val, err := c.client.Get(ctx, summaryKey(date)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DailySummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, summary domain.DailySummary, ttl time.Duration) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(summary.Date), payload, ttl).Err()
}

func (c *RedisSummaryCache) Delete(ctx context.Context, date time.Time) error {
	return c.client.Del(ctx, summaryKey(date)).Err()
}
