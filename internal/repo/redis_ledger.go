package repo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisLedgerKey = "forwarder:ledger"

// RedisLedger stores watermarks as fields of a single hash.
type RedisLedger struct {
	rdb *redis.Client
	key string
}

var _ LedgerRepository = (*RedisLedger)(nil)

func NewRedisLedger(rdb *redis.Client, key string) *RedisLedger {
	if key == "" {
		key = DefaultRedisLedgerKey
	}
	return &RedisLedger{rdb: rdb, key: key}
}

func (r *RedisLedger) Load(ctx context.Context) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}

	out := make(map[string]int64, len(raw))
	for channel, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid watermark for channel %s: %q", channel, v)
		}
		out[channel] = id
	}
	return out, nil
}

func (r *RedisLedger) Save(ctx context.Context, channelKey string, messageID int64) error {
	return r.rdb.HSet(ctx, r.key, channelKey, messageID).Err()
}
