package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "x402pay:settled:"

// RedisLedger is a Settler shared by every gate instance using the same
// Redis. Entries expire after the retention period.
type RedisLedger struct {
	client    redis.Cmdable
	retention time.Duration
}

func NewRedisLedger(client redis.Cmdable, retention time.Duration) *RedisLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisLedger{client: client, retention: retention}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisLedger) Settle(ctx context.Context, txHash string) error {
	ok, err := l.client.SetNX(ctx, keyPrefix+normalize(txHash), time.Now().Unix(), l.retention).Result()
	if err != nil {
		return fmt.Errorf("failed to record settlement: %w", err)
	}
	if !ok {
		return ErrAlreadySettled
	}
	return nil
}

var _ Settler = (*RedisLedger)(nil)
