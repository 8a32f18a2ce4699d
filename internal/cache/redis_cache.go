package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ ForwardCache = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type forwardedValue struct {
	Target      string    `json:"target"`
	FunnyScore  float64   `json:"funnyScore"`
	Involvement float64   `json:"involvement"`
	ForwardedAt time.Time `json:"forwardedAt"`
}

func forwardKey(channelKey string, messageID int64) string {
	return fmt.Sprintf("fwd:%s:%d", channelKey, messageID)
}

func (c *RedisCache) StoreForwarded(ctx context.Context, rec ForwardRecord) error {
	val := forwardedValue{
		Target:      rec.Target,
		FunnyScore:  rec.FunnyScore,
		Involvement: rec.Involvement,
		ForwardedAt: rec.ForwardedAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, forwardKey(rec.ChannelKey, rec.MessageID), b, c.ttl).Err()
}
